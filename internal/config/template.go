package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 输入为 ./tasks 目录下的控制块，结果写入 ./out；选项列出全部键并给出中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"tasks"},
		Concurrency: 4,
		MaxRetries:  2,
		Mode:        d.Mode,
		Logging:     Logging{Level: "info"},
		Limits:      Limits{TasksPerMinute: 0, Burst: 0, MaxIntervalSpan: 1 << 24},
		Metrics:     Metrics{Textfile: ""},
		Components:  d.Components,
	}
	cfg.Options.Source = json.RawMessage(`{
  "allow_exts": [".ctl"],
  "exclude_dir_names": [".git"]
}`)
	cfg.Options.Worker = json.RawMessage(`{
  "rate_key": ""
}`)
	// decoder.blob 的 mode 由顶层 mode 注入
	cfg.Options.Decoder = json.RawMessage(`{}`)
	cfg.Options.Assembler = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "blob_dir": "blobs",
  "atomic": true,
  "flat": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
