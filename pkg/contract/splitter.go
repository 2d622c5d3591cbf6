package contract

import "context"

// Splitter: 将一个大跨度切分为若干首尾相接的任务区间。
// 约束：
// 1) 结果按 Left 严格升序、互不重叠、并集恰为 span；
// 2) 除最后一个外，每个区间宽度恰为 width；
// 3) maxTasks > 0 时，任务数超过上限返回 ErrBudgetExceeded；
// 4) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, span Interval, width U128, maxTasks int) ([]Interval, error)
}
