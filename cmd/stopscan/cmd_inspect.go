package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stopscan/internal/wire"
	"stopscan/pkg/contract"
	wsql "stopscan/plugins/writer/sqlite"
)

type inspectFlags struct {
	mode string
	db   string
}

func newInspectCmd(stdout io.Writer) *cobra.Command {
	var f inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect [FILE...]",
		Short: "Decode result blobs and print (n, length) pairs, lengths or the maximum",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), f, args, stdout)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", string(contract.ModePerNumber), "结果块形态 per_number|maximum|finite_only")
	cmd.Flags().StringVar(&f.db, "db", "", "从 sqlite 结果账本读取全部 *.bin（替代文件参数）")
	return cmd
}

func runInspect(ctx context.Context, f inspectFlags, files []string, stdout io.Writer) error {
	mode := contract.Mode(f.mode)
	if !mode.Valid() {
		return configErr("参数无效: %w", fmt.Errorf("%w: unknown mode %q", contract.ErrMalformedInput, f.mode))
	}
	if f.db == "" && len(files) == 0 {
		return configErr("参数无效: %w", fmt.Errorf("%w: no result blobs given", contract.ErrMalformedInput))
	}
	if f.db != "" {
		if _, err := os.Stat(f.db); err != nil {
			return configErr("打开结果账本失败: %w", err)
		}
		store, err := wsql.New(&wsql.Options{Path: f.db})
		if err != nil {
			return configErr("打开结果账本失败: %w", err)
		}
		defer store.Close()
		ids, err := store.List(ctx)
		if err != nil {
			return runErr(err)
		}
		for _, id := range ids {
			if !strings.HasSuffix(string(id), ".bin") {
				continue
			}
			b, err := store.Read(ctx, id)
			if err != nil {
				return runErr(err)
			}
			if err := printBlob(stdout, string(id), mode, b); err != nil {
				return runErr(err)
			}
		}
		return nil
	}
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return runErr(err)
		}
		if err := printBlob(stdout, filepath.Base(p), mode, b); err != nil {
			return runErr(err)
		}
	}
	return nil
}

// printBlob 打印单个结果块。per_number 下若无溢出剔除，逐行输出 "n length"；
// 有剔除时起始值无法还原，仅输出长度。
func printBlob(w io.Writer, name string, mode contract.Mode, b []byte) error {
	res, err := wire.Decode(mode, b)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(w, "# %s mode=%s bytes=%d\n", name, mode, len(b))
	switch mode {
	case contract.ModeMaximum:
		fmt.Fprintf(w, "max %d\n", res.Max)
	case contract.ModeFiniteOnly:
		fmt.Fprintf(w, "# count=%d max=%d\n", len(res.Lengths), res.Max)
		for _, l := range res.Lengths {
			fmt.Fprintf(w, "%d\n", l)
		}
	case contract.ModePerNumber:
		iv := res.Interval
		fmt.Fprintf(w, "# interval=%s count=%d max=%d\n", iv, len(res.Lengths), res.Max)
		if iv.Len().Cmp64(uint64(len(res.Lengths))) != 0 {
			dropped := iv.Len().Sub64(uint64(len(res.Lengths)))
			fmt.Fprintf(w, "# %s overflowed entries dropped; starting values not recoverable\n", dropped)
			for _, l := range res.Lengths {
				fmt.Fprintf(w, "%d\n", l)
			}
			return nil
		}
		n := iv.Left
		for _, l := range res.Lengths {
			fmt.Fprintf(w, "%s %d\n", n, l)
			n = n.Add64(1)
		}
	}
	return nil
}
