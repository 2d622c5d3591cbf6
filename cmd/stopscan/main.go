package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stopscan/internal/pipeline"
)

// 退出码：0 成功；1 运行失败；3 配置/装配/参数错误。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

var pipelineRun = pipeline.Run

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, err)}
}

func runErr(err error) error { return &exitError{code: exitRun, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 构建命令树并执行，返回退出码。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "错误: %v\n", ee.err)
		}
		return ee.code
	}
	// cobra 参数/旗标错误
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "stopscan",
		Short: "Batch stopping-time scanner over 128-bit integer intervals",
		Long: `stopscan evaluates the 3n+1 stopping time for every starting value in
half-open intervals [left, right) described by 32-byte control blobs, and
writes one result blob per task plus a JSONL summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(stdout, stderr),
		newPlanCmd(stdout),
		newInspectCmd(stdout),
		newEvalCmd(stdout),
		newInitConfigCmd(stdout, stderr),
	)
	return root
}
