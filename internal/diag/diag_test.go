package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stopscan/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = w.Close()
}

// 当前文件名与时间戳文件同时存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == currentLogName {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "stopscan-") && e.Name() != currentLogName {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// 默认 maxBytes 与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	defer w.Close()
	if w.maxBytes != 10*1024*1024 {
		t.Fatalf("默认 maxBytes 错误: %d", w.maxBytes)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("未打开时 Sync 应为 no-op: %v", err)
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, currentLogName)); err != nil {
		t.Fatalf("rotate 应打开 current: %v", err)
	}
}

// UT-DIAG-02: 指标计数与 textfile 导出
func TestMetricsCountAndExport(t *testing.T) {
	m := ResetMetrics()
	IncOp("worker", "invoke", "success")
	IncOp("worker", "invoke", "success")
	IncError("worker", string(CodeWorker))
	ObserveDuration("worker", "invoke", 3)
	AddNumbers("maximum", 27, 2)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range mfs {
		for _, mt := range mf.GetMetric() {
			if c := mt.GetCounter(); c != nil {
				got[mf.GetName()] += c.GetValue()
			}
		}
	}
	want := map[string]float64{
		"stopscan_op_total":       2,
		"stopscan_error_total":    1,
		"stopscan_numbers_total":  27,
		"stopscan_overflow_total": 2,
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %v, 预期 %v", k, got[k], v)
		}
	}

	path := filepath.Join(t.TempDir(), "stopscan.prom")
	if err := WriteMetrics(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !bytes.Contains(b, []byte(`stopscan_numbers_total{mode="maximum"} 27`)) {
		t.Fatalf("textfile 内容缺失: %s", b)
	}
	if Default() != m {
		t.Fatalf("Default 应返回最近一次 Reset 的指标集")
	}
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrOutOfDomain, CodeDomain},
		{fmt.Errorf("x: %w", contract.ErrMalformedInput), CodeMalformed},
		{contract.ErrBudgetExceeded, CodeBudget},
		{contract.ErrRateLimited, CodeBudget},
		{fmt.Errorf("x: %w", contract.ErrWorkerFailed), CodeWorker},
		{contract.ErrSeqInvalid, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{contract.ErrInvariantViolation, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v) = %s, 预期 %s", c.err, got, c.want)
		}
	}
	if !Retryable(contract.ErrWorkerFailed) || Retryable(contract.ErrMalformedInput) {
		t.Fatalf("Retryable 判定错误")
	}
	if Retryable(fmt.Errorf("%w: %w", contract.ErrWorkerFailed, context.Canceled)) {
		t.Fatalf("取消不应重试")
	}
}

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(ln) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(ln, &m); err != nil {
			t.Fatalf("非 JSON 行: %q", ln)
		}
		out = append(out, m)
	}
	return out
}

// Logger 事件字段与级别过滤
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "corr", "info")
	timer := l.StartWith("worker", "invoke", "task-1-28")
	timer.Finish("ok", 27)
	l.DebugStart("worker", "hidden", "t", nil) // info 级别下被过滤
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("pipeline", string(CodeWorker), "boom", &start, "task-2-3", map[string]string{"attempt": "1"})
	l.Warn("pipeline", "worker", "retry", "task-2-3", nil)
	l.InfoFinish("run", "done", time.Now(), 3)
	_ = l.Sync()

	evs := decodeLines(t, buf.Bytes())
	if len(evs) != 5 {
		t.Fatalf("事件数 = %d, 预期 5: %s", len(evs), buf.String())
	}
	first := evs[0]
	if first["corr_id"] != "corr" || first["comp"] != "worker" || first["stage"] != "start" || first["task_id"] != "task-1-28" {
		t.Fatalf("start 事件字段错误: %v", first)
	}
	if evs[1]["count"] != float64(27) || evs[1]["stage"] != "finish" {
		t.Fatalf("finish 事件字段错误: %v", evs[1])
	}
	errEv := evs[2]
	if errEv["level"] != "error" || errEv["code"] != "worker" {
		t.Fatalf("error 事件字段错误: %v", errEv)
	}
	if kv, ok := errEv["kv"].(map[string]any); !ok || kv["attempt"] != "1" {
		t.Fatalf("kv 字段错误: %v", errEv["kv"])
	}
	if evs[3]["level"] != "warn" {
		t.Fatalf("warn 级别错误: %v", evs[3])
	}
}

func TestLoggerDebugLevelAndNil(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", " DEBUG ")
	l.DebugStart("comp", "visible", "", nil)
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug 级别应输出调试事件")
	}
	buf.Reset()
	bad := NewLoggerTo(&buf, "c", "nonsense")
	bad.DebugStart("comp", "x", "", nil)
	if buf.Len() != 0 {
		t.Fatalf("未知级别应回落为 info")
	}

	var nl *Logger
	nl.Start("c", "m").Finish("x", 0)
	nl.Error("c", "code", "m", nil)
	if err := nl.Sync(); err != nil {
		t.Fatalf("nil Sync: %v", err)
	}
	if nl.Zap() == nil {
		t.Fatalf("nil Zap 应返回 Nop")
	}
	Nop().Error("c", "code", "m", nil)
	var tnil *Timer
	tnil.Finish("x", 0)
	if tnil.Since() != nil {
		t.Fatalf("nil Timer.Since 应为 nil")
	}
}

// 默认文件 sink 路径
func TestLoggerWithSink(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "logs", currentLogName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if !bytes.Contains(b, []byte(`"comp":"comp"`)) {
		t.Fatalf("日志内容缺失: %s", b)
	}
}

// UT-DIAG-03: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, "native")
	term.TaskFinish("task-1-28", 27, true)
	term.TaskFinish("task-28-40", 0, false)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 并发=4 | worker=native",
		"[done] task-1-28 | 数值 27",
		"[fail] task-28-40 | 数值 0",
		"[ok] 全部完成 | 任务 1 | 数值 27 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// UT-DIAG-04: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(2, "native")

	term.TaskFinish("a", 10, true)
	first := sb.String()
	if !strings.Contains(first, "\r[scan]") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.TaskFinish("b", 10, true)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	time.Sleep(120 * time.Millisecond)
	term.TaskFinish("c", 10, true)
	third := sb.String()
	if !strings.Contains(third, "任务 3") {
		t.Fatalf("third progress should reflect 3 tasks: %q", third)
	}
	term.RunFinish(false, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

// UT-DIAG-05: 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.RunStart(1, "x")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.TaskFinish("a", 1, true)
	term.RunFinish(true, 0)

	inline := NewTerminal(&flakyWriter{fail: true}, true)
	inline.isTTY = true
	inline.TaskFinish("a", 1, true)
	if inline.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

func TestTerminalNilAndCI(t *testing.T) {
	var tn *Terminal
	tn.RunStart(1, "x")
	tn.TaskFinish("a", 1, true)
	tn.RunFinish(true, 0)

	t.Setenv("CI", "true")
	if NewTerminal(os.Stderr, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

// UT-DIAG-06: 工具函数
func TestHelpers(t *testing.T) {
	if got := shorten("这是一个很长的任务名用于截断测试abcdefghijk", 10); visLen(got) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shorten 截断错误: %q", got)
	}
	if shorten("x", 0) != "" || shorten("abc", 5) != "abc" {
		t.Fatalf("shorten 边界错误")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur failed")
	}
	if NowUTC() == "" {
		t.Fatalf("应返回时间字符串")
	}
}
