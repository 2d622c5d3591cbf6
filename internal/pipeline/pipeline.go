package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stopscan/internal/diag"
	"stopscan/internal/rate"
	"stopscan/internal/wire"
	"stopscan/pkg/contract"
)

// - 单点并发：仅此层管理并发与背压；Worker/Decoder/Assembler/Writer 均为同步实现。
// - 顺序门闩：任务按 Source 产出顺序编号，结果按编号严格递增提交；乱序结果暂存，连续冲刷。
// - 首错取消：任一任务最终失败即取消整体；排空后返回该错误。
// - 预算：区间跨度超过 MaxIntervalSpan 的任务在调度前拒绝。

// SummaryArtifact: 汇总工件名。
const SummaryArtifact contract.ArtifactID = "summary.jsonl"

// Components 聚合运行所需的原子组件。
type Components struct {
	Source    contract.Source
	Worker    contract.Worker
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	Concurrency int
	// MaxRetries: Worker 临时性失败的最大重试次数（>=0）。
	MaxRetries int
	// RetryBackoff: 重试间隔；<=0 时为 200ms。
	RetryBackoff time.Duration
	// MaxIntervalSpan: 单任务区间跨度上限；0 表示不限。
	MaxIntervalSpan uint64
	// WorkerName: 仅用于日志与终端提示。
	WorkerName string
	// 限流闸门（可选）：非空时每次调用 Worker 前 Wait。
	Gate    rate.Gate
	GateKey rate.LimitKey
	// MetricsTextfile: 非空时运行结束后写出 prometheus textfile。
	MetricsTextfile string
	// Terminal: 可选终端进度。
	Terminal *diag.Terminal
}

// task: 一次调度单元。
type task struct {
	idx     int
	id      contract.TaskID
	control []byte
	iv      contract.Interval
}

// result: Worker 成功产出的结果块。
type result struct {
	t    task
	blob []byte
}

// Run 执行完整流水线：Source → (Gate) → Worker → 顺序门闩[Writer(<task>.bin) + Decoder] → Assembler → Writer(summary.jsonl)。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	if set.Concurrency < 1 {
		set.Concurrency = 1
	}
	if set.RetryBackoff <= 0 {
		set.RetryBackoff = 200 * time.Millisecond
	}
	runStart := time.Now()
	set.Terminal.RunStart(set.Concurrency, set.WorkerName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	latch := newLatch(comp, logger, set.Terminal)

	stimer := logger.Start("source", "iterate")
	next := 0
	ierr := comp.Source.Iterate(gctx, set.Inputs, func(id contract.TaskID, control []byte) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		t := task{idx: next, id: id, control: control}
		iv, err := wire.DecodeInterval(control)
		if err != nil {
			logger.ErrorWith("source", string(diag.Classify(err)), "decode control failed", nil, string(id))
			return fmt.Errorf("task %s: %w", id, err)
		}
		if err := checkSpan(iv, set.MaxIntervalSpan); err != nil {
			logger.ErrorWith("source", string(diag.Classify(err)), "interval span over budget", nil, string(id))
			diag.IncError("source", string(diag.CodeBudget))
			return fmt.Errorf("task %s: %w", id, err)
		}
		t.iv = iv
		next++
		// SetLimit 使 Go 在池满时阻塞，形成自然背压
		g.Go(func() error {
			blob, err := invokeWithRetry(gctx, comp.Worker, set, t, logger)
			if err != nil {
				set.Terminal.TaskFinish(string(t.id), 0, false)
				return fmt.Errorf("task %s: %w", t.id, err)
			}
			return latch.commit(gctx, result{t: t, blob: blob})
		})
		return nil
	})
	werr := g.Wait()
	if err := firstError(werr, ierr); err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), err.Error(), stimer.Since())
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", string(code))
		set.Terminal.RunFinish(false, time.Since(runStart))
		flushMetrics(set, logger)
		return err
	}
	stimer.Finish("iterate", int64(next))
	diag.IncOp("source", "finish", "success")

	if latch.expect != next {
		err := fmt.Errorf("%w: committed %d of %d tasks", contract.ErrInvariantViolation, latch.expect, next)
		set.Terminal.RunFinish(false, time.Since(runStart))
		return err
	}

	if err := assembleSummary(ctx, comp, latch.reports, logger); err != nil {
		set.Terminal.RunFinish(false, time.Since(runStart))
		flushMetrics(set, logger)
		return err
	}
	set.Terminal.RunFinish(true, time.Since(runStart))
	logger.InfoFinish("pipeline", "run", runStart, int64(next))
	flushMetrics(set, logger)
	return nil
}

// firstError 优先返回非取消类的根因错误。
func firstError(errs ...error) error {
	var fallback error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
		if fallback == nil {
			fallback = err
		}
	}
	return fallback
}

func checkSpan(iv contract.Interval, limit uint64) error {
	if limit == 0 {
		return nil
	}
	n := iv.Len()
	if n.Hi != 0 || n.Lo > limit {
		return fmt.Errorf("%w: interval %s spans %s > %d", contract.ErrBudgetExceeded, iv, n, limit)
	}
	return nil
}

func invokeWithRetry(ctx context.Context, w contract.Worker, set Settings, t task, logger *diag.Logger) ([]byte, error) {
	attempts := set.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if set.Gate != nil {
			logger.DebugStart("gate", "ask", string(t.id), map[string]string{"attempt": strconv.Itoa(attempt + 1)})
			if err := set.Gate.Wait(ctx, rate.Ask{Key: set.GateKey, Tasks: 1}); err != nil {
				code := diag.Classify(err)
				logger.ErrorWith("gate", string(code), "wait failed", nil, string(t.id))
				diag.IncOp("gate", "error", "error")
				diag.IncError("gate", string(code))
				// Gate 错误不重试（通常为取消或申请非法）
				return nil, err
			}
		}
		timer := logger.StartWithKV("worker", "invoke", string(t.id), map[string]string{
			"interval": t.iv.String(),
			"attempt":  strconv.Itoa(attempt + 1),
		})
		resp, err := w.Invoke(ctx, contract.Request{Control: t.control})
		if err == nil && len(resp.Blobs) != 1 {
			err = fmt.Errorf("%w: worker returned %d blobs, want 1", contract.ErrInvariantViolation, len(resp.Blobs))
		}
		if err != nil {
			code := diag.Classify(err)
			diag.IncOp("worker", "error", "error")
			diag.IncError("worker", string(code))
			lastErr = err
			if attempt+1 < attempts && diag.Retryable(err) {
				logger.Warn("worker", string(code), "invoke failed, retrying", string(t.id), map[string]string{"attempt": strconv.Itoa(attempt + 1)})
				if serr := sleepWithCtx(ctx, set.RetryBackoff); serr != nil {
					return nil, serr
				}
				continue
			}
			logger.ErrorWithKV("worker", string(code), "invoke failed", timer.Since(), string(t.id), map[string]string{"attempts": strconv.Itoa(attempt + 1)})
			return nil, err
		}
		timer.Finish("invoke", int64(len(resp.Blobs[0])))
		diag.IncOp("worker", "finish", "success")
		diag.ObserveDuration("worker", "invoke", time.Since(*timer.Since()).Milliseconds())
		return resp.Blobs[0], nil
	}
	return nil, lastErr
}

// latch: 按任务编号顺序提交结果（写出结果块、解码为报告、更新指标与进度）。
type latch struct {
	comp    Components
	logger  *diag.Logger
	term    *diag.Terminal
	mu      sync.Mutex
	expect  int
	pending map[int]result
	reports []contract.Report
}

func newLatch(comp Components, logger *diag.Logger, term *diag.Terminal) *latch {
	return &latch{comp: comp, logger: logger, term: term, pending: make(map[int]result)}
}

// commit 暂存 r，并冲刷所有连续就绪的结果；提交在锁内串行执行。
func (l *latch) commit(ctx context.Context, r result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[r.t.idx] = r
	for {
		cur, ok := l.pending[l.expect]
		if !ok {
			return nil
		}
		delete(l.pending, l.expect)
		if err := l.flush(ctx, cur); err != nil {
			l.term.TaskFinish(string(cur.t.id), 0, false)
			return fmt.Errorf("task %s: %w", cur.t.id, err)
		}
		l.expect++
	}
}

func (l *latch) flush(ctx context.Context, r result) error {
	id := string(r.t.id)
	art := contract.ResultArtifact(r.t.id)
	wtimer := l.logger.StartWith("writer", "write", id)
	if err := l.comp.Writer.Write(ctx, art, bytes.NewReader(r.blob)); err != nil {
		code := diag.Classify(err)
		l.logger.ErrorWith("writer", string(code), "write failed", wtimer.Since(), id)
		diag.IncOp("writer", "error", "error")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write: %w", err)
	}
	wtimer.Finish("write", int64(len(r.blob)))
	diag.IncOp("writer", "finish", "success")

	rep, err := l.comp.Decoder.Decode(ctx, r.t.id, r.t.control, r.blob)
	if err != nil {
		code := diag.Classify(err)
		l.logger.ErrorWith("decoder", string(code), "decode failed", nil, id)
		diag.IncOp("decoder", "error", "error")
		diag.IncError("decoder", string(code))
		return fmt.Errorf("decoder decode: %w", err)
	}
	diag.IncOp("decoder", "finish", "success")
	l.reports = append(l.reports, rep)

	numbers := saturate(r.t.iv.Len())
	var overflowed uint64
	// maximum 模式无法从 4 字节推知有限条数，不统计溢出
	if rep.Mode != contract.ModeMaximum && numbers >= uint64(rep.Count) {
		overflowed = numbers - uint64(rep.Count)
	}
	diag.AddNumbers(string(rep.Mode), numbers, overflowed)
	l.term.TaskFinish(id, numbers, true)
	return nil
}

func saturate(n contract.U128) uint64 {
	if n.Hi != 0 {
		return ^uint64(0)
	}
	return n.Lo
}

// assembleSummary 将报告按区间左端升序排列后交由 Assembler，并写出汇总工件。
func assembleSummary(ctx context.Context, comp Components, reports []contract.Report, logger *diag.Logger) error {
	sorted := slices.Clone(reports)
	// 同起点时空区间在前
	slices.SortStableFunc(sorted, func(a, b contract.Report) int {
		if c := a.Interval.Left.Cmp(b.Interval.Left); c != 0 {
			return c
		}
		return a.Interval.Right.Cmp(b.Interval.Right)
	})

	atimer := logger.Start("assembler", "assemble")
	rd, err := comp.Assembler.Assemble(ctx, sorted)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("assembler", string(code), "assemble failed", atimer.Since())
		diag.IncOp("assembler", "error", "error")
		diag.IncError("assembler", string(code))
		return fmt.Errorf("assembler assemble: %w", err)
	}
	atimer.Finish("assemble", int64(len(sorted)))
	diag.IncOp("assembler", "finish", "success")

	wtimer := logger.StartWith("writer", "write", string(SummaryArtifact))
	if err := comp.Writer.Write(ctx, SummaryArtifact, rd); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed", wtimer.Since(), string(SummaryArtifact))
		diag.IncOp("writer", "error", "error")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write(summary): %w", err)
	}
	wtimer.Finish("write", int64(len(sorted)))
	diag.IncOp("writer", "finish", "success")
	return nil
}

func flushMetrics(set Settings, logger *diag.Logger) {
	if set.MetricsTextfile == "" {
		return
	}
	if err := diag.WriteMetrics(set.MetricsTextfile); err != nil {
		logger.Error("metrics", string(diag.Classify(err)), "write textfile failed", nil)
	}
}

func sanity(c Components) error {
	if c.Source == nil || c.Worker == nil || c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	return nil
}

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
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
