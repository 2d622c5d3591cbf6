package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标（prometheus，独立 Registry，不注册到全局默认注册表）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
// - numbers_total{mode}：已求值的起始值个数
// - overflow_total{mode}：溢出被剔除的起始值个数
//
// 核心计算包不触碰指标；仅宿主流水线在提交点按结果块更新。
type Metrics struct {
	reg      *prometheus.Registry
	ops      *prometheus.CounterVec
	errs     *prometheus.CounterVec
	dur      *prometheus.HistogramVec
	numbers  *prometheus.CounterVec
	overflow *prometheus.CounterVec
}

// NewMetrics 构造一组新指标并注册到私有 Registry。
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stopscan", Name: "op_total", Help: "Stage operations by result.",
		}, []string{"comp", "stage", "result"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stopscan", Name: "error_total", Help: "Errors by classification code.",
		}, []string{"comp", "code"}),
		dur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stopscan", Name: "op_duration_ms", Help: "Stage duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"comp", "stage"}),
		numbers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stopscan", Name: "numbers_total", Help: "Starting values evaluated.",
		}, []string{"mode"}),
		overflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stopscan", Name: "overflow_total", Help: "Starting values dropped on 128-bit overflow.",
		}, []string{"mode"}),
	}
	m.reg.MustRegister(m.ops, m.errs, m.dur, m.numbers, m.overflow)
	return m
}

// Registry 暴露 Gatherer（测试与导出使用）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile 以 node_exporter textfile 格式原子写出当前指标。
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

var (
	stdMu sync.RWMutex
	std   = NewMetrics()
)

// Default 返回进程级指标集。
func Default() *Metrics { stdMu.RLock(); defer stdMu.RUnlock(); return std }

// ResetMetrics 以全新指标集替换进程级指标（每次运行开始时调用）。
func ResetMetrics() *Metrics {
	m := NewMetrics()
	stdMu.Lock()
	std = m
	stdMu.Unlock()
	return m
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	Default().ops.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	Default().errs.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	Default().dur.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddNumbers 累加某模式下已求值与溢出剔除的起始值个数。
func AddNumbers(mode string, evaluated, overflowed uint64) {
	m := Default()
	m.numbers.WithLabelValues(mode).Add(float64(evaluated))
	if overflowed > 0 {
		m.overflow.WithLabelValues(mode).Add(float64(overflowed))
	}
}

// WriteMetrics 将进程级指标写出到 textfile 路径。
func WriteMetrics(path string) error { return Default().WriteTextfile(path) }
