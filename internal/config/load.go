package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "STOPSCAN_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		MaxRetries:  0,
		Mode:        "per_number",
		Logging:     Logging{Level: "info"},
		Components: Components{
			Source:    "fs",
			Worker:    "native",
			Decoder:   "blob",
			Assembler: "linear",
			Writer:    "fs",
		},
	}
}

// Load 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	default:
		return LoadJSON(raw)
	}
}

// LoadJSON 从原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, errors.New("config: empty document")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadYAML 先解码为通用树再转为 JSON，复用同一套严格解码与 RawMessage 选项。
func LoadYAML(raw []byte) (Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, fmt.Errorf("config: yaml: %w", err)
	}
	if tree == nil {
		return Config{}, errors.New("config: empty document")
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: yaml to json: %w", err)
	}
	return LoadJSON(js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// MaxRetries 的 0 有语义（禁用重试）；约定 <0 表示未覆盖。
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	if m := strings.TrimSpace(over.Mode); m != "" {
		out.Mode = m
	}
	if l := strings.TrimSpace(over.Logging.Level); l != "" {
		out.Logging.Level = l
	}
	if over.Limits.TasksPerMinute != 0 {
		out.Limits.TasksPerMinute = over.Limits.TasksPerMinute
	}
	if over.Limits.Burst != 0 {
		out.Limits.Burst = over.Limits.Burst
	}
	if over.Limits.MaxIntervalSpan != 0 {
		out.Limits.MaxIntervalSpan = over.Limits.MaxIntervalSpan
	}
	if over.Metrics.Textfile != "" {
		out.Metrics.Textfile = over.Metrics.Textfile
	}

	// 组件名（空不覆盖）
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Components.Source, over.Components.Source)
	pick(&out.Components.Worker, over.Components.Worker)
	pick(&out.Components.Decoder, over.Components.Decoder)
	pick(&out.Components.Assembler, over.Components.Assembler)
	pick(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	raw := func(dst *json.RawMessage, v json.RawMessage) {
		if len(v) > 0 {
			*dst = cloneRaw(v)
		}
	}
	raw(&out.Options.Source, over.Options.Source)
	raw(&out.Options.Worker, over.Options.Worker)
	raw(&out.Options.Decoder, over.Options.Decoder)
	raw(&out.Options.Assembler, over.Options.Assembler)
	raw(&out.Options.Writer, over.Options.Writer)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，其余忽略）。
// 前缀 STOPSCAN_；支持：INPUTS, CONCURRENCY, MAX_RETRIES, MODE, LOG_LEVEL,
// TASKS_PER_MINUTE, BURST, MAX_INTERVAL_SPAN, METRICS_TEXTFILE, COMPONENTS_*, OPTIONS_*_JSON。
// 空值忽略；数值解析失败返回错误，避免静默使用默认值。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	over.MaxRetries = -1
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[len(EnvPrefix):eq], kv[eq+1:]
		tv := strings.TrimSpace(val)
		// 空值视为未设置（.env 模板中的占位键）
		if tv == "" {
			continue
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "MAX_RETRIES":
			over.MaxRetries, err = atoi(val)
		case "MODE":
			over.Mode = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "TASKS_PER_MINUTE":
			over.Limits.TasksPerMinute, err = atoi(val)
		case "BURST":
			over.Limits.Burst, err = atoi(val)
		case "MAX_INTERVAL_SPAN":
			over.Limits.MaxIntervalSpan, err = strconv.ParseUint(tv, 10, 64)
		case "METRICS_TEXTFILE":
			over.Metrics.Textfile = tv
		case "COMPONENTS_SOURCE":
			over.Components.Source = tv
		case "COMPONENTS_WORKER":
			over.Components.Worker = tv
		case "COMPONENTS_DECODER":
			over.Components.Decoder = tv
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "OPTIONS_SOURCE_JSON":
			over.Options.Source = json.RawMessage(tv)
		case "OPTIONS_WORKER_JSON":
			over.Options.Worker = json.RawMessage(tv)
		case "OPTIONS_DECODER_JSON":
			over.Options.Decoder = json.RawMessage(tv)
		case "OPTIONS_ASSEMBLER_JSON":
			over.Options.Assembler = json.RawMessage(tv)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(tv)
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
