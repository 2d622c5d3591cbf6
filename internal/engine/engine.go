// Package engine 实现单次调用边界：解码控制块 → 区间扫描 → 聚合 → 一次性编码。
//
// Engine 构造后不可变，可被任意多个 goroutine 并发 Invoke；每次调用只读取自身的控制块，
// 只写出自身新分配的结果块。
package engine

import (
	"context"
	"fmt"

	"stopscan/internal/stoptime"
	"stopscan/internal/wire"
	"stopscan/pkg/contract"
)

// Engine: 绑定一个聚合器与输出分配器的计算入口。
type Engine struct {
	agg   contract.Aggregator
	alloc contract.Allocator
}

// New 构造 Engine；alloc 为 nil 时使用 HeapAllocator。
func New(agg contract.Aggregator, alloc contract.Allocator) (*Engine, error) {
	if agg == nil {
		return nil, fmt.Errorf("%w: nil aggregator", contract.ErrInvariantViolation)
	}
	if alloc == nil {
		alloc = contract.HeapAllocator
	}
	return &Engine{agg: agg, alloc: alloc}, nil
}

// Mode 返回绑定聚合器的输出形态。
func (e *Engine) Mode() contract.Mode { return e.agg.Mode() }

// Compute 对单个控制块执行完整计算，返回恰好一个结果块。
// 失败时返回 nil 与错误，不产生部分结果。
func (e *Engine) Compute(control []byte) ([]byte, error) {
	iv, err := wire.DecodeInterval(control)
	if err != nil {
		return nil, err
	}
	if !iv.Empty() && iv.Left.IsZero() {
		return nil, fmt.Errorf("%w: %s", contract.ErrOutOfDomain, iv)
	}
	res, err := e.agg.Aggregate(iv, stoptime.Scan(iv))
	if err != nil {
		return nil, err
	}
	if res.Mode != e.agg.Mode() {
		return nil, fmt.Errorf("%w: aggregator produced mode %q, want %q", contract.ErrInvariantViolation, res.Mode, e.agg.Mode())
	}
	return wire.Encode(res, e.alloc)
}

// Invoke 实现 contract.Worker：校验载荷形态后调用 Compute。
// ctx 仅在调用边界检查一次；扫描过程中不响应取消。
func (e *Engine) Invoke(ctx context.Context, req contract.Request) (contract.Response, error) {
	if err := ctx.Err(); err != nil {
		return contract.Response{}, err
	}
	if len(req.Blobs) != 0 {
		return contract.Response{}, fmt.Errorf("%w: expected 0 data blobs, got %d", contract.ErrMalformedInput, len(req.Blobs))
	}
	if req.Control == nil {
		return contract.Response{}, fmt.Errorf("%w: control block missing", contract.ErrMalformedInput)
	}
	out, err := e.Compute(req.Control)
	if err != nil {
		return contract.Response{}, err
	}
	return contract.Response{Blobs: [][]byte{out}}, nil
}
