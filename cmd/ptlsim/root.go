package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ptlsim",
		Short:         "Run Portals scenarios against the in-process engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newCodesCommand(opts))
	return cmd
}

// logger returns a development logger when verbose is set and a
// warning-level production logger otherwise.
func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Sampling = nil
	return cfg.Build()
}
