// Package stoptime 实现停止时间递推的核心计算：单步变换、单值求值与区间扫描。
//
// 约束：
//   - 纯计算：无日志、无 I/O、无包级可变状态，可被任意多个调用方并发使用；
//   - 算术定宽 128 位；越界视为逐值的溢出结果，而非错误或静默回绕；
//   - 不做取消/超时；调用方需在调度前限制区间规模。
package stoptime
