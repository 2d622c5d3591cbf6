package blob

import (
	"context"
	"fmt"

	"stopscan/internal/wire"
	"stopscan/pkg/contract"
)

// Options: 解码器配置；Mode 由装配层按全局模式注入。
type Options struct {
	Mode string `json:"mode"`
}

// Decoder 把结果块还原为 Report。无状态，可并发调用。
type Decoder struct {
	mode contract.Mode
}

// New 创建解码器；模式未知时返回 ErrMalformedInput。
func New(opts *Options) (*Decoder, error) {
	m := contract.ModePerNumber
	if opts != nil && opts.Mode != "" {
		m = contract.Mode(opts.Mode)
	}
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", contract.ErrMalformedInput, m)
	}
	return &Decoder{mode: m}, nil
}

// Mode 返回解码所用模式。
func (d *Decoder) Mode() contract.Mode { return d.mode }

// Decode 实现 contract.Decoder。
// per_number 模式下回显区间必须与控制块一致，否则视为结果块损坏。
func (d *Decoder) Decode(ctx context.Context, id contract.TaskID, control, blob []byte) (contract.Report, error) {
	if err := ctx.Err(); err != nil {
		return contract.Report{}, err
	}
	iv, err := wire.DecodeInterval(control)
	if err != nil {
		return contract.Report{}, fmt.Errorf("task %s: %w", id, err)
	}
	res, err := wire.Decode(d.mode, blob)
	if err != nil {
		return contract.Report{}, fmt.Errorf("task %s: %w", id, err)
	}
	if d.mode == contract.ModePerNumber && res.Interval != iv {
		return contract.Report{}, fmt.Errorf("%w: task %s echo %s != control %s", contract.ErrMalformedInput, id, res.Interval, iv)
	}
	// 有限结果条数不可能超过区间长度
	if n := len(res.Lengths); n > 0 && iv.Len().Cmp64(uint64(n)) < 0 {
		return contract.Report{}, fmt.Errorf("%w: task %s has %d lengths for %s", contract.ErrInvariantViolation, id, n, iv)
	}
	rep := contract.Report{
		TaskID:   id,
		Interval: iv,
		Mode:     d.mode,
		Max:      res.Max,
		Lengths:  res.Lengths,
	}
	if d.mode != contract.ModeMaximum {
		rep.Count = len(res.Lengths)
	}
	return rep, nil
}

var _ contract.Decoder = (*Decoder)(nil)
