package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与诊断分类）。
var (
	// ErrMalformedInput: 控制块缺失/尺寸错误/区间非法；单次调用致命，不做默认填充。
	ErrMalformedInput = errors.New("malformed input")
	// ErrOutOfDomain: 非空区间包含 0（递推在 0 处无定义）。errors.Is 同时命中 ErrMalformedInput。
	ErrOutOfDomain = fmt.Errorf("%w: interval contains 0", ErrMalformedInput)
	// ErrInvariantViolation: 领域不变量违例（通用哨兵，例如分配器返回尺寸不符）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrSeqInvalid: 报告序列逆序或重叠。
	ErrSeqInvalid = errors.New("sequence invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 任务规模超出配置上限（调度前拒绝）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrRateLimited: 限流闸门拒绝。
	ErrRateLimited = errors.New("rate limited")
	// ErrWorkerFailed: Worker 临时性失败（宿主层可重试）。
	ErrWorkerFailed = errors.New("worker failed")
)
