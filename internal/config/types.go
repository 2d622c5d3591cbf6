package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: fs Source 的根（文件/目录/"-"）；span Source 忽略。
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// MaxRetries: Worker 临时性失败的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries"`
	// Mode: 输出形态（per_number|maximum|finite_only），注入 Worker 与 Decoder。
	Mode    string  `json:"mode"`
	Logging Logging `json:"logging"`
	Limits  Limits  `json:"limits"`
	Metrics Metrics `json:"metrics"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Limits: 调度限额（执行位于 rate.Gate 与 pipeline）。
type Limits struct {
	TasksPerMinute int `json:"tasks_per_minute"`
	Burst          int `json:"burst"`
	// MaxIntervalSpan: 单任务区间跨度上限；0 不限。
	MaxIntervalSpan uint64 `json:"max_interval_span"`
}

// Metrics: prometheus textfile 导出路径（空则不导出）。
type Metrics struct {
	Textfile string `json:"textfile"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source    string `json:"source"`
	Worker    string `json:"worker"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Source    json.RawMessage `json:"source"`
	Worker    json.RawMessage `json:"worker"`
	Decoder   json.RawMessage `json:"decoder"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
}
