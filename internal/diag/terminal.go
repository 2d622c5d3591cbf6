package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Terminal: 终端进度提示（非日志）。
// - TTY: 单行 \r 覆盖，100ms 节流；非 TTY: 仅在关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	concurrency int
	worker      string
	runStart    time.Time

	tasksDone int
	tasksErr  int
	numbers   uint64

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			fd := f.Fd()
			t.isTTY = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		}
	}
	return t
}

// RunStart: 记录运行上下文（并发、Worker 名称）。
func (t *Terminal) RunStart(concurrency int, worker string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.concurrency = concurrency
	t.worker = worker
	t.tasksDone, t.tasksErr, t.numbers = 0, 0, 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 并发=%d | worker=%s", concurrency, safe(worker)))
}

// TaskFinish: 单个任务提交完成（按提交顺序调用）。
// 非 TTY 分行打印；TTY 刷新进度行。
func (t *Terminal) TaskFinish(taskID string, numbers uint64, ok bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if ok {
		t.tasksDone++
		t.numbers += numbers
	} else {
		t.tasksErr++
	}
	if !t.isTTY {
		status := "done"
		if !ok {
			status = "fail"
		}
		t.println(fmt.Sprintf("[%s] %s | 数值 %d", status, shorten(taskID, 48), numbers))
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[scan] 任务 %d | 错误 %d | 数值 %d | 并发 %d | 用时 %s",
		t.tasksDone, t.tasksErr, t.numbers, t.concurrency, formatDur(time.Since(t.runStart))))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 任务 %d | 数值 %d | 总用时 %s", tag, t.tasksDone, t.numbers, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	// 新行比旧行短时以空格覆盖残留
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shorten 按可见宽度截断（尾部省略号）。
func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", max(d.Milliseconds(), 0))
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
