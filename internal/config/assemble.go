package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stopscan/internal/pipeline"
	"stopscan/internal/rate"
	"stopscan/pkg/contract"
	"stopscan/pkg/registry"
)

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	d := Defaults()
	sourceName := effName(cfg.Components.Source, d.Components.Source)
	if sourceName == "fs" {
		if len(cfg.Inputs) == 0 {
			return errors.New("config: inputs empty")
		}
		// 输入路径不得为空字符串；"-" 不能与其他根混用
		dash := false
		for _, r := range cfg.Inputs {
			switch strings.TrimSpace(r) {
			case "":
				return errors.New("config: input path cannot be empty")
			case "-":
				dash = true
			}
		}
		if dash && len(cfg.Inputs) > 1 {
			return errors.New("config: '-' cannot be mixed with other roots")
		}
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if !contract.Mode(effName(cfg.Mode, d.Mode)).Valid() {
		return fmt.Errorf("config: unknown mode %q", cfg.Mode)
	}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("config: unknown logging.level %q", cfg.Logging.Level)
	}
	if cfg.Limits.TasksPerMinute < 0 || cfg.Limits.Burst < 0 {
		return errors.New("config: limits must be >= 0")
	}
	if registry.Source[sourceName] == nil {
		return fmt.Errorf("config: source %q not registered", sourceName)
	}
	if name := effName(cfg.Components.Worker, d.Components.Worker); registry.Worker[name] == nil {
		return fmt.Errorf("config: worker %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Components.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Components.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("config: assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处仅向 worker/decoder 注入 mode。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	mode := effName(cfg.Mode, d.Mode)
	sn := effName(cfg.Components.Source, d.Components.Source)
	wkn := effName(cfg.Components.Worker, d.Components.Worker)
	dn := effName(cfg.Components.Decoder, d.Components.Decoder)
	an := effName(cfg.Components.Assembler, d.Components.Assembler)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	workerOpts, err := injectMode(cfg.Options.Worker, mode)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.worker: %w", err)
	}
	decoderOpts, err := injectMode(cfg.Options.Decoder, mode)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.decoder: %w", err)
	}

	src, err := registry.Source[sn](cfg.Options.Source)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("source %s: %w", sn, err)
	}
	wk, err := registry.Worker[wkn](workerOpts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("worker %s: %w", wkn, err)
	}
	dec, err := registry.Decoder[dn](decoderOpts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("decoder %s: %w", dn, err)
	}
	asm, err := registry.Assembler[an](cfg.Options.Assembler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("assembler %s: %w", an, err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer %s: %w", wn, err)
	}

	comp := pipeline.Components{Source: src, Worker: wk, Decoder: dec, Assembler: asm, Writer: w}
	set := pipeline.Settings{
		Inputs:          cloneStrings(cfg.Inputs),
		Concurrency:     cfg.Concurrency,
		MaxRetries:      cfg.MaxRetries,
		MaxIntervalSpan: cfg.Limits.MaxIntervalSpan,
		WorkerName:      wkn,
		MetricsTextfile: cfg.Metrics.Textfile,
	}
	// 限流 Gate：未配置每分钟任务数时不启用
	if cfg.Limits.TasksPerMinute > 0 {
		key := rate.DeriveKey(wkn, workerOpts)
		set.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{
			key: {TasksPerMinute: cfg.Limits.TasksPerMinute, Burst: cfg.Limits.Burst},
		}, nil)
		set.GateKey = key
	}
	return comp, set, nil
}

// injectMode 在组件选项中写入 mode；已显式配置且不一致时报错。
func injectMode(raw json.RawMessage, mode string) (json.RawMessage, error) {
	obj := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if obj == nil {
			obj = map[string]any{}
		}
	}
	if v, ok := obj["mode"]; ok {
		if s, _ := v.(string); s != "" && s != mode {
			return nil, fmt.Errorf("mode %q conflicts with top-level mode %q", s, mode)
		}
	}
	obj["mode"] = mode
	return json.Marshal(obj)
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
