package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "stopscan/internal/config"
	"stopscan/internal/diag"
)

type runFlags struct {
	config      string
	concurrency int
	maxRetries  int
	mode        string
	logLevel    string
	metrics     string
	status      bool
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Run the scan pipeline over control blobs (files, directories or - for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, f, stderr)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件（.json/.yaml）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	fl.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	// max-retries 允许显式设置为 0；默认 -1 表示未覆盖
	fl.IntVar(&f.maxRetries, "max-retries", -1, "Worker 临时性失败的最大重试次数（覆盖配置；0 表示不重试）")
	fl.StringVar(&f.mode, "mode", "", "输出形态 per_number|maximum|finite_only（覆盖配置）")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	fl.StringVar(&f.metrics, "metrics-textfile", "", "运行结束后写出 prometheus textfile（覆盖配置）")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	return cmd
}

func runPipeline(cmd *cobra.Command, roots []string, f runFlags, stderr io.Writer) error {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）
	_ = loadDotEnv(".env")

	cfg, err := resolveConfig(f, roots)
	if err != nil {
		return err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(stderr, cfg)
		return configErr("配置校验失败: %w", err)
	}
	logger := diag.NewLogger(corrID, cfg.Logging.Level)
	defer logger.Sync()

	if err := preflightOutput(cfg); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "preflight failed", &start)
		return configErr("输出目标不可写: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed", &start)
		return configErr("装配失败: %w", err)
	}
	if c, ok := comp.Writer.(io.Closer); ok {
		defer c.Close()
	}
	diag.ResetMetrics()
	set.Terminal = diag.NewTerminal(stderr, f.status)

	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"max_retries":  strconv.Itoa(cfg.MaxRetries),
		"mode":         cfg.Mode,
		"source":       cfg.Components.Source,
		"worker":       cfg.Components.Worker,
		"decoder":      cfg.Components.Decoder,
		"assembler":    cfg.Components.Assembler,
		"writer":       cfg.Components.Writer,
		"gate_key":     string(set.GateKey),
	})

	if err := pipelineRun(cmd.Context(), comp, set, logger); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return runErr(err)
	}
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return nil
}

// resolveConfig: Defaults → 文件 → ENV → CLI。
func resolveConfig(f runFlags, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, cand := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(cand); err == nil {
				path = cand
				break
			}
		}
	}
	switch {
	case path != "":
		base, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	case os.Getenv(cfgpkg.EnvPrefix+"CONFIG_JSON") != "":
		base, err := cfgpkg.LoadJSON([]byte(os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON")))
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	overCLI := cfgpkg.Config{MaxRetries: f.maxRetries, Inputs: roots}
	if f.concurrency > 0 {
		overCLI.Concurrency = f.concurrency
	}
	overCLI.Mode = f.mode
	overCLI.Logging.Level = f.logLevel
	overCLI.Metrics.Textfile = f.metrics
	return cfgpkg.Merge(cfg, overCLI), nil
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s\n", b)
	return err
}

// preflightOutput: 启动前检查输出目标的可写性（fs: output_dir；sqlite: 数据库所在目录）。
func preflightOutput(cfg cfgpkg.Config) error {
	var wopts struct {
		OutputDir string `json:"output_dir"`
		Path      string `json:"path"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	var dir string
	switch strings.TrimSpace(cfg.Components.Writer) {
	case "", "fs":
		dir = strings.TrimSpace(wopts.OutputDir)
	case "sqlite":
		if p := strings.TrimSpace(wopts.Path); p != "" {
			dir = filepath.Dir(p)
		}
	}
	if dir == "" {
		// 未指定时交由装配阶段报错
		return nil
	}
	return checkWritableDir(dir)
}

// checkWritableDir: 目录存在则试写临时文件；不存在则检查最近的已存在祖先可写。
func checkWritableDir(dir string) error {
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	return checkWritableDir(parent)
}
