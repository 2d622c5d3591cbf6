package contract

import "iter"

// Aggregator: 将逐个起始值的 Outcome 折叠为某一输出形态的 Result。
// 约束：
//  1. 按 outcomes 的产出顺序消费（扫描器保证升序）；
//  2. 溢出项直接剔除，不插入占位值；
//  3. 纯计算：无日志、无 I/O、无部分写出；
//  4. 不持有跨调用状态，可被并发调用。
type Aggregator interface {
	Mode() Mode
	Aggregate(iv Interval, outcomes iter.Seq2[U128, Outcome]) (Result, error)
}
