package diag

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"stopscan/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeMalformed Code = "malformed"
	CodeDomain    Code = "domain"
	CodeInvariant Code = "invariant"
	CodeBudget    Code = "budget"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeWorker    Code = "worker"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 0 域外先于一般的输入错误
	if errors.Is(err, contract.ErrOutOfDomain) {
		return CodeDomain
	}
	if errors.Is(err, contract.ErrMalformedInput) {
		return CodeMalformed
	}
	if errors.Is(err, contract.ErrBudgetExceeded) || errors.Is(err, contract.ErrRateLimited) {
		return CodeBudget
	}
	if errors.Is(err, contract.ErrWorkerFailed) {
		return CodeWorker
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrSeqInvalid) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// Retryable 报告错误是否属于可重试的临时性 Worker 失败。
func Retryable(err error) bool { return Classify(err) == CodeWorker }

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
