package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"stopscan/pkg/contract"
)

// LimitKey: 限流分组键（例如 worker 名称）。
type LimitKey string

// Limits: 每分组的限额配置。TasksPerMinute == 0 表示不限。
type Limits struct {
	TasksPerMinute int // 每分钟放行的任务数
	Burst          int // 令牌桶容量；<=0 时取 TasksPerMinute
}

// Ask: 一次放行申请。
type Ask struct {
	Key   LimitKey
	Tasks int // 必须 >=1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；单次申请超出桶容量时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (tasksAvail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*xrate.Limiter, len(m))}
	for k, lim := range m {
		if l := newLimiter(lim); l != nil {
			g.m[k] = l
		}
	}
	return g
}

// newLimiter 将每分钟任务数换算为每秒速率；未启用时返回 nil。
func newLimiter(lim Limits) *xrate.Limiter {
	if lim.TasksPerMinute <= 0 {
		return nil
	}
	burst := lim.Burst
	if burst <= 0 {
		burst = lim.TasksPerMinute
	}
	return xrate.NewLimiter(xrate.Limit(float64(lim.TasksPerMinute)/60.0), burst)
}

type gate struct {
	clk func() time.Time
	mu  sync.RWMutex
	m   map[LimitKey]*xrate.Limiter
}

// get 返回 key 的限流器；未配置的 key 不限额（nil）。
func (g *gate) get(key LimitKey) *xrate.Limiter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.m[key]
}

func (g *gate) Try(a Ask) bool {
	if a.Tasks <= 0 {
		return false
	}
	l := g.get(a.Key)
	if l == nil {
		return true
	}
	return l.AllowN(g.clk(), a.Tasks)
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Tasks <= 0 {
		return fmt.Errorf("%w: ask tasks must be >= 1, got %d", contract.ErrInvariantViolation, a.Tasks)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l := g.get(a.Key)
	if l == nil {
		return nil
	}
	now := g.clk()
	r := l.ReserveN(now, a.Tasks)
	if !r.OK() {
		return fmt.Errorf("%w: ask %d exceeds burst %d for %q", contract.ErrRateLimited, a.Tasks, l.Burst(), a.Key)
	}
	if err := sleepCtx(ctx, r.DelayFrom(now)); err != nil {
		// 未消费的预约归还令牌
		r.CancelAt(g.clk())
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot: 返回当前可用任务额度的向下取整估值（仅诊断）；未配置的 key 返回 -1。
func (g *gate) Snapshot(key LimitKey) int {
	l := g.get(key)
	if l == nil {
		return -1
	}
	v := l.TokensAt(g.clk())
	if v < 0 {
		return 0
	}
	return int(v)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
