package span

import (
	"context"
	"fmt"
	"strings"

	"lukechampine.com/uint128"

	"stopscan/internal/wire"
	"stopscan/pkg/contract"
)

// Options 描述一段按定宽切分的连续跨度（十进制字符串以覆盖 128 位）。
// 跨度为 [start, start+width*count)。
type Options struct {
	Start string `json:"start"`
	Width string `json:"width"`
	Count int    `json:"count"`
}

// Span 在内存中生成任务：不读取 roots，控制块由区间编码得到，TaskID 为 task-<left>-<right>。
type Span struct {
	span     contract.Interval
	width    contract.U128
	count    int
	splitter contract.Splitter
}

// New 校验选项并构造 Span Source；splitter 负责把跨度切分为任务区间。
func New(opts *Options, splitter contract.Splitter) (*Span, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: span source requires start/width/count", contract.ErrMalformedInput)
	}
	if splitter == nil {
		return nil, fmt.Errorf("%w: span source requires a splitter", contract.ErrInvariantViolation)
	}
	start, err := parseU128("start", opts.Start)
	if err != nil {
		return nil, err
	}
	width, err := parseU128("width", opts.Width)
	if err != nil {
		return nil, err
	}
	if width.IsZero() {
		return nil, fmt.Errorf("%w: width must be > 0", contract.ErrMalformedInput)
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("%w: count must be >= 0", contract.ErrMalformedInput)
	}
	span, err := Plan(start, width, uint64(opts.Count))
	if err != nil {
		return nil, err
	}
	return &Span{span: span, width: width, count: opts.Count, splitter: splitter}, nil
}

// Plan 计算 [start, start+width*count)，超出 128 位时返回 ErrMalformedInput。
func Plan(start, width contract.U128, count uint64) (contract.Interval, error) {
	if count == 0 {
		return contract.Interval{Left: start, Right: start}, nil
	}
	if width.Cmp(uint128.Max.Div64(count)) > 0 {
		return contract.Interval{}, fmt.Errorf("%w: width*count exceeds 128 bits", contract.ErrMalformedInput)
	}
	total := width.Mul64(count)
	if start.Cmp(uint128.Max.Sub(total)) > 0 {
		return contract.Interval{}, fmt.Errorf("%w: start+width*count exceeds 128 bits", contract.ErrMalformedInput)
	}
	return contract.Interval{Left: start, Right: start.Add(total)}, nil
}

func parseU128(field, s string) (contract.U128, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint128.Zero, fmt.Errorf("%w: %s is required", contract.ErrMalformedInput, field)
	}
	v, err := uint128.FromString(s)
	if err != nil {
		return uint128.Zero, fmt.Errorf("%w: %s %q: %v", contract.ErrMalformedInput, field, s, err)
	}
	return v, nil
}

// Interval 返回整体跨度。
func (s *Span) Interval() contract.Interval { return s.span }

// Iterate 忽略 roots，按升序产出每个任务的控制块。
func (s *Span) Iterate(ctx context.Context, _ []string, yield func(id contract.TaskID, control []byte) error) error {
	ivs, err := s.splitter.Split(ctx, s.span, s.width, s.count)
	if err != nil {
		return err
	}
	for _, iv := range ivs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(contract.IntervalTaskID(iv), wire.EncodeInterval(iv)); err != nil {
			return err
		}
	}
	return nil
}
