package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stopscan/pkg/contract"
	sspan "stopscan/plugins/source/span"
	fixed "stopscan/plugins/splitter/fixed"
	wfs "stopscan/plugins/writer/filesystem"
)

type planFlags struct {
	start    string
	width    string
	count    int
	out      string
	maxTasks int
}

func newPlanCmd(stdout io.Writer) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write control blobs for count consecutive intervals of a fixed width",
		Long: `plan splits [start, start+width*count) into count tasks of the given width
and writes each as a 32-byte control blob named task-<left>-<right>.ctl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, f, stdout)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.start, "start", "1", "起始值（十进制，支持 128 位）")
	fl.StringVar(&f.width, "width", "", "每个任务的区间宽度（十进制）")
	fl.IntVar(&f.count, "count", 0, "任务数")
	fl.StringVar(&f.out, "out", "tasks", "控制块输出目录")
	fl.IntVar(&f.maxTasks, "max-tasks", 0, "任务数上限；0 不限")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func runPlan(cmd *cobra.Command, f planFlags, stdout io.Writer) error {
	src, err := sspan.New(&sspan.Options{Start: f.start, Width: f.width, Count: f.count},
		fixed.New(&fixed.Options{MaxTasks: f.maxTasks}))
	if err != nil {
		return configErr("参数无效: %w", err)
	}
	w, err := wfs.New(&wfs.Options{OutputDir: f.out})
	if err != nil {
		return configErr("输出目录无效: %w", err)
	}
	n := 0
	err = src.Iterate(cmd.Context(), nil, func(id contract.TaskID, control []byte) error {
		n++
		return w.Write(cmd.Context(), contract.ArtifactID(string(id)+".ctl"), bytes.NewReader(control))
	})
	if err != nil {
		return runErr(fmt.Errorf("plan: %w", err))
	}
	fmt.Fprintf(stdout, "wrote %d control blobs to %s covering %s\n", n, f.out, src.Interval())
	return nil
}
