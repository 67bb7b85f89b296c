package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"link2ur.backend/internal/infrastructure/jobs"
	"link2ur.backend/internal/usecases"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and run maintenance jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered jobs with their effective cadence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Listing never runs a job, so no backend is wired.
			s, err := newScheduler(cfg, (*usecases.MaintenanceUsecase)(nil), nil)
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), s.Jobs())
		},
	}

	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run one job immediately, enabled or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			items, err := a.scheduler.RunOnce(cmd.Context(), args[0])
			if errors.Is(err, jobs.ErrUnknownJob) {
				return fmt.Errorf("unknown job %q, see `job list`", args[0])
			}
			if err != nil {
				return fmt.Errorf("job %s failed after %d items: %w", args[0], items, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items\n", args[0], items)
			return nil
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}

func printJobs(w io.Writer, list []jobs.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINTERVAL\tENABLED")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", j.Name, j.Interval, j.Enabled)
	}
	return tw.Flush()
}
