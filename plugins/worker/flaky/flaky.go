package flaky

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"stopscan/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	// Mode: 同 native。
	Mode string `json:"mode"`
	// FailFirst: 前 N 次调用返回 ErrWorkerFailed；缺省为 1，显式 0 表示不注入失败。
	FailFirst *int `json:"fail_first,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath    string `json:"log_path,omitempty"`
	RateKey string `json:"rate_key,omitempty"`
}

// Worker 是带状态的故障注入实现：前 FailFirst 次 Invoke 返回临时性失败，
// 之后委托给内部 Worker。仅用于重试路径的联调与测试。
type Worker struct {
	inner     contract.Worker
	failFirst int32
	logPath   string
	count     atomic.Int32
}

// New 构造 Worker。
func New(opts *Options, inner contract.Worker) (*Worker, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: flaky worker requires an inner worker", contract.ErrInvariantViolation)
	}
	w := &Worker{inner: inner, failFirst: 1}
	if opts != nil {
		if n := opts.FailFirst; n != nil {
			if *n < 0 || *n > math.MaxInt32 {
				return nil, fmt.Errorf("%w: fail_first must be in [0, %d], got %d", contract.ErrMalformedInput, math.MaxInt32, *n)
			}
			w.failFirst = int32(*n)
		}
		w.logPath = opts.LogPath
	}
	return w, nil
}

func (w *Worker) log(s string) {
	if w.logPath == "" {
		return
	}
	_ = appendFile(w.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Calls 返回累计调用次数。
func (w *Worker) Calls() int { return int(w.count.Load()) }

// Invoke 实现 contract.Worker。
func (w *Worker) Invoke(ctx context.Context, req contract.Request) (contract.Response, error) {
	n := w.count.Add(1)
	if n <= w.failFirst {
		w.log("worker_failed")
		return contract.Response{}, fmt.Errorf("%w: injected failure %d/%d", contract.ErrWorkerFailed, n, w.failFirst)
	}
	w.log("ok")
	return w.inner.Invoke(ctx, req)
}

var _ contract.Worker = (*Worker)(nil)
