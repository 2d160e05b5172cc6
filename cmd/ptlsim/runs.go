package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/portals4-go/internal/journal"
)

type runsOptions struct {
	*rootOptions
	journal  string
	scenario string
	show     string
}

func newRunsCommand(root *rootOptions) *cobra.Command {
	opts := &runsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs or print one transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(opts.journal)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if opts.show != "" {
				lines, err := j.Lines(cmd.Context(), opts.show)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			}

			runs, err := j.Runs(cmd.Context(), opts.scenario)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-8s %s  %s\n", run.ID, run.Status, run.StartedAt.UTC().Format(time.RFC3339), run.Scenario)
				if run.Error != "" {
					fmt.Fprintf(out, "    %s\n", run.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "only list runs of this scenario")
	cmd.Flags().StringVar(&opts.show, "show", "", "print the transcript of this run id")
	return cmd
}
