package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rocketbitz/portals4-go/internal/journal"
	"github.com/rocketbitz/portals4-go/internal/scenario"
)

type runOptions struct {
	*rootOptions
	journal     string
	waitTimeout time.Duration
	quiet       bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Execute scenarios and print their transcripts",
		Long: `Execute each scenario on a fresh fabric and print its transcript.

With --journal every line is also recorded in a SQLite database together
with the outcome of the run.

Examples:
  ptlsim run testdata/put_get.yaml
  ptlsim run --journal runs.db scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.journal, "journal", "", "record transcripts in this SQLite database")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 2*time.Second, "bound for ct_wait and counted eq_drain steps")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "print only the outcome of each scenario")
	return cmd
}

func runScenarios(cmd *cobra.Command, opts *runOptions, paths []string) error {
	logger, err := opts.logger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	var j *journal.Journal
	if opts.journal != "" {
		j, err = journal.Open(opts.journal)
		if err != nil {
			return err
		}
		defer j.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		runErr := runOne(ctx, cmd, opts, j, logger, sc)
		if runErr != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", sc.Name, runErr)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", sc.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(paths))
	}
	return nil
}

func runOne(ctx context.Context, cmd *cobra.Command, opts *runOptions, j *journal.Journal, logger *zap.Logger, sc *scenario.Scenario) error {
	out := cmd.OutOrStdout()
	runOpts := []scenario.RunOption{
		scenario.WithLogger(logger.With(zap.String("scenario", sc.Name))),
		scenario.WithWaitTimeout(opts.waitTimeout),
	}

	var runID string
	if j != nil {
		id, err := j.Begin(ctx, sc.Name)
		if err != nil {
			return err
		}
		runID = id
	}
	runOpts = append(runOpts, scenario.WithSink(func(seq int, line string) error {
		if !opts.quiet {
			fmt.Fprintln(out, line)
		}
		if j != nil {
			return j.Record(ctx, runID, seq, line)
		}
		return nil
	}))

	_, runErr := scenario.Run(ctx, sc, runOpts...)
	if j != nil {
		if err := j.Finish(ctx, runID, runErr); err != nil {
			logger.Warn("journal finish failed", zap.String("run", runID), zap.Error(err))
		}
		logger.Info("run recorded", zap.String("run", runID))
	}
	return runErr
}
