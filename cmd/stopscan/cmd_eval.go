package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"lukechampine.com/uint128"

	"stopscan/internal/stoptime"
	"stopscan/pkg/contract"
)

func newEvalCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "eval N...",
		Short: "Print the stopping time of individual starting values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				n, err := uint128.FromString(a)
				if err != nil {
					return configErr("参数无效: %w", fmt.Errorf("%w: %q: %v", contract.ErrMalformedInput, a, err))
				}
				o := stoptime.Evaluate(n)
				if o.IsFinite() {
					fmt.Fprintf(stdout, "%s %d\n", n, o.Length)
				} else {
					fmt.Fprintf(stdout, "%s overflow\n", n)
				}
			}
			return nil
		},
	}
}
