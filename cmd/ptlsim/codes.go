package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/portals4-go/internal/abi"
	"github.com/rocketbitz/portals4-go/ptl"
)

func newCodesCommand(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "List return codes, event kinds and failure types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "return codes:")
			for _, e := range abi.Errnos() {
				fmt.Fprintf(out, "  %3d %s\n", int(e), ptl.ToStr(int(e), ptl.StrError))
			}
			fmt.Fprintln(out, "event kinds:")
			for _, k := range abi.EventKinds() {
				fmt.Fprintf(out, "  %3d %s\n", int(k), ptl.ToStr(int(k), ptl.StrEvent))
			}
			fmt.Fprintln(out, "failure types:")
			for _, f := range abi.NIFails() {
				fmt.Fprintf(out, "  %3d %s\n", int(f), ptl.ToStr(int(f), ptl.StrFailType))
			}
			return nil
		},
	}
}
