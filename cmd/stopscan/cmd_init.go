package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "stopscan/internal/config"
)

func newInitConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [DIR]",
		Short: "Write a template config.json and .env into DIR (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			cfgPath := filepath.Join(dir, "config.json")
			created, err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			if created {
				fmt.Fprintf(stdout, "created %s\n", cfgPath)
			} else {
				fmt.Fprintf(stdout, "kept existing %s\n", cfgPath)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// writeConfig 写出配置；文件已存在时不覆盖并返回 created=false。
func writeConfig(path string, c cfgpkg.Config) (bool, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return false, err
	}
	return true, nil
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	p := cfgpkg.EnvPrefix
	b.WriteString("# stopscan .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件；空值表示未设置。\n\n")
	b.WriteString("# 配置来源（二选一）\n")
	fmt.Fprintf(&b, "%sCONFIG_FILE=\n%sCONFIG_JSON=\n\n", p, p)
	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "CONCURRENCY", "MAX_RETRIES", "MODE", "LOG_LEVEL", "TASKS_PER_MINUTE", "BURST", "MAX_INTERVAL_SPAN", "METRICS_TEXTFILE"} {
		fmt.Fprintf(&b, "%s%s=\n", p, k)
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"SOURCE", "WORKER", "DECODER", "ASSEMBLER", "WRITER"} {
		fmt.Fprintf(&b, "%sCOMPONENTS_%s=\n", p, k)
	}
	b.WriteString("\n# 组件选项（原样 JSON）\n")
	for _, k := range []string{"SOURCE", "WORKER", "DECODER", "ASSEMBLER", "WRITER"} {
		fmt.Fprintf(&b, "%sOPTIONS_%s_JSON=\n", p, k)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
