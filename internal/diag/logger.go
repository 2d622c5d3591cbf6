package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志：zap JSON 编码，单行输出到轮转文件（或指定 Writer）。
// 事件字段固定为 comp / stage(start|finish|error) / code / dur_ms / count / task_id / kv。
// nil *Logger 上的所有方法均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 按配置级别初始化，日志写入 logs/stopscan-current.txt，10 MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := newLogger(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写到 w（测试或 stderr 场景）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return newLogger(zapcore.AddSync(w), corrID, level)
}

// Nop 返回丢弃一切事件的 Logger。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func newLogger(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, parseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

func parseLevel(s string) zapcore.Level {
	lv, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lv
}

// Event 为标准事件结构。
type Event struct {
	Comp   string
	Stage  string // start|finish|error
	Code   string
	DurMS  int64
	Count  int64
	TaskID string
	Msg    string
	KV     map[string]string
}

func (e Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", e.Comp), zap.String("stage", e.Stage))
	if e.Code != "" {
		fs = append(fs, zap.String("code", e.Code))
	}
	if e.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", e.DurMS))
	}
	if e.Count != 0 {
		fs = append(fs, zap.Int64("count", e.Count))
	}
	if e.TaskID != "" {
		fs = append(fs, zap.String("task_id", e.TaskID))
	}
	if len(e.KV) > 0 {
		fs = append(fs, zap.Any("kv", e.KV))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Zap 暴露底层 zap.Logger（nil 安全）。
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Sync 刷新缓冲并关闭轮转文件（若有）。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 task_id 的 start。
func (l *Logger) StartWith(comp, msg, taskID string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", TaskID: taskID, Msg: msg})
	return &Timer{l: l, comp: comp, taskID: taskID, t0: time.Now()}
}

// StartWithKV 记录带 task_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, taskID string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", TaskID: taskID, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, taskID: taskID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 task_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, taskID string) {
	l.ErrorWithKV(comp, code, msg, durSince, taskID, nil)
}

// ErrorWithKV 支持附带键值对（例如重试次数、区间）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, taskID string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, TaskID: taskID, KV: kv})
}

// Warn 记录可恢复异常（例如将要重试）。
func (l *Logger) Warn(comp, code, msg, taskID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "error", Code: code, Msg: msg, TaskID: taskID, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, taskID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", TaskID: taskID, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	taskID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, TaskID: t.taskID, Msg: msg})
}

// Since 返回计时起点，便于 Error 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
