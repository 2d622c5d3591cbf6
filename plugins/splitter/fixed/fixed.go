package fixed

import (
	"context"
	"fmt"

	"lukechampine.com/uint128"

	"stopscan/pkg/contract"
)

// Options 为定宽 Splitter 的可选配置。
type Options struct {
	// MaxTasks: 单次切分的任务数上限；0 表示不限。与调用方传入的上限取较严者。
	MaxTasks int `json:"max_tasks"`
}

// Splitter 将跨度切分为首尾相接的定宽区间，最后一个可能更短。
type Splitter struct {
	maxTasks int
}

// New 创建定宽 Splitter。
func New(opts *Options) *Splitter {
	s := &Splitter{}
	if opts != nil && opts.MaxTasks > 0 {
		s.maxTasks = opts.MaxTasks
	}
	return s
}

func (s *Splitter) limit(maxTasks int) int {
	switch {
	case s.maxTasks == 0:
		return maxTasks
	case maxTasks <= 0:
		return s.maxTasks
	default:
		return min(s.maxTasks, maxTasks)
	}
}

// Split 按 width 切分 span；空跨度返回空切片。
func (s *Splitter) Split(ctx context.Context, span contract.Interval, width contract.U128, maxTasks int) ([]contract.Interval, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	if width.IsZero() {
		return nil, fmt.Errorf("%w: split width must be > 0", contract.ErrMalformedInput)
	}
	limit := s.limit(maxTasks)
	var out []contract.Interval
	left := span.Left
	for left.Cmp(span.Right) < 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && len(out) == limit {
			return nil, fmt.Errorf("%w: span %s needs more than %d tasks of width %s", contract.ErrBudgetExceeded, span, limit, width)
		}
		right := span.Right
		// right-left > width 时截取一个整宽，避免 left+width 溢出
		if span.Right.Sub(left).Cmp(width) > 0 {
			right = left.Add(width)
		}
		out = append(out, contract.Interval{Left: left, Right: right})
		left = right
	}
	return out, nil
}

// Count 返回 span 按 width 切分后的任务数（向上取整），超出 uint64 时饱和。
func Count(span contract.Interval, width contract.U128) uint64 {
	if width.IsZero() || span.Empty() {
		return 0
	}
	q, r := span.Len().QuoRem(width)
	if !r.IsZero() {
		if q.Equals(uint128.Max) {
			return ^uint64(0)
		}
		q = q.Add64(1)
	}
	if q.Hi != 0 {
		return ^uint64(0)
	}
	return q.Lo
}
