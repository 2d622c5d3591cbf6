package native

import (
	"context"
	"fmt"

	"stopscan/internal/engine"
	"stopscan/pkg/contract"
)

// Options: 进程内 Worker 的配置。
type Options struct {
	// Mode: 输出形态（per_number|maximum|finite_only）；由装配层选择对应聚合器。
	Mode string `json:"mode"`
	// RateKey: 限流分组标签（仅被限流层读取）。
	RateKey string `json:"rate_key,omitempty"`
}

// Worker 在当前进程内同步执行计算；无跨调用状态，可并发调用。
type Worker struct {
	eng *engine.Engine
}

// New 以给定聚合器构造 Worker；opts.Mode 非空时须与聚合器一致。
func New(opts *Options, agg contract.Aggregator) (*Worker, error) {
	eng, err := engine.New(agg, nil)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.Mode != "" && contract.Mode(opts.Mode) != eng.Mode() {
		return nil, fmt.Errorf("%w: mode %q does not match aggregator %q", contract.ErrInvariantViolation, opts.Mode, eng.Mode())
	}
	return &Worker{eng: eng}, nil
}

// Mode 返回输出形态。
func (w *Worker) Mode() contract.Mode { return w.eng.Mode() }

// Invoke 实现 contract.Worker。
func (w *Worker) Invoke(ctx context.Context, req contract.Request) (contract.Response, error) {
	return w.eng.Invoke(ctx, req)
}

var _ contract.Worker = (*Worker)(nil)
