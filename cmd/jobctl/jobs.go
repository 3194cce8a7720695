package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
)

func ListCmd(open serviceFunc) *cobra.Command {
	var filter dto.JobFilter
	var status, jobType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			filter.Status = config.JobStatus(status)
			filter.Type = config.JobType(jobType)

			res, err := svc.ListJobs(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, res)
			}

			if len(res.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPRIORITY\tATTEMPTS\tCREATED")
			for _, j := range res.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					j.ID, j.Type, j.Status, j.Priority, j.Attempts, j.CreatedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d jobs\n", len(res.Jobs), res.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, completed, failed, cancelled)")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().StringVar(&filter.OrderID, "order", "", "filter by order id")
	cmd.Flags().IntVar(&filter.Limit, "limit", config.DefaultListLimit, "page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func GetCmd(open serviceFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			j, err := svc.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), j)
		},
	}
}

func StatsCmd(open serviceFunc) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			s, err := svc.GetJobStats(cmd.Context(), hours)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, s)
			}

			fmt.Fprintf(out, "--- Jobs created in the last %dh ---\n", s.WindowHours)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "pending\t%d\n", s.Pending)
			fmt.Fprintf(tw, "processing\t%d\n", s.Processing)
			fmt.Fprintf(tw, "completed\t%d\n", s.Completed)
			fmt.Fprintf(tw, "failed\t%d\n", s.Failed)
			fmt.Fprintf(tw, "cancelled\t%d\n", s.Cancelled)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&hours, "hours", config.DefaultStatsHours, "window size in hours")
	return cmd
}

func StuckCmd(open serviceFunc) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List jobs processing for longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			jobs, err := svc.ListStuckJobs(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("failed to list stuck jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No stuck jobs.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTARTED\tRUNNING FOR")
			for _, j := range jobs {
				started, running := "-", "-"
				if j.StartedAt != nil {
					started = j.StartedAt.Format(time.RFC3339)
					running = time.Since(*j.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.Type, started, running)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "minimum time in processing")
	return cmd
}

func EnqueueCmd(open serviceFunc) *cobra.Command {
	var (
		priority int
		orderID  string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <type> <payload-json>",
		Short: "Add a job to the queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			in := &dto.JobCreateDTO{
				Type:    config.JobType(args[0]),
				Payload: json.RawMessage(args[1]),
			}
			if cmd.Flags().Changed("priority") {
				in.Priority = &priority
			}
			if orderID != "" {
				in.OrderID = &orderID
			}

			id, err := svc.Enqueue(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", config.DefaultPriority, "lower runs first (0-100)")
	cmd.Flags().StringVar(&orderID, "order", "", "order the job belongs to")
	return cmd
}

// CancelCmd builds "cancel" or, with force, "force-cancel".
func CancelCmd(open serviceFunc, force bool) *cobra.Command {
	use, short := "cancel <job-id>", "Cancel a job that has not started"
	if force {
		use, short = "force-cancel <job-id>", "Mark a stuck processing job cancelled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			apply := svc.CancelJob
			if force {
				apply = svc.ForceCancelJob
			}

			ok, err := apply(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job %s was not cancelled: it is not in a cancellable state", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled.\n", args[0])
			return nil
		},
	}
}

func RetriggerCmd(open serviceFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "retrigger <job-id>",
		Short: "Re-run a failed or cancelled job as a new job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			newID, err := svc.RetriggerJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), newID)
			return nil
		},
	}
}

func ClearCmd(open serviceFunc) *cobra.Command {
	var (
		statuses []string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete jobs by status (terminal jobs when no --status is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete jobs without --yes")
			}

			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}

			in := make([]config.JobStatus, len(statuses))
			for i, s := range statuses {
				in[i] = config.JobStatus(s)
			}

			n, err := svc.ClearJobs(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("failed to clear jobs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d jobs.\n", n)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status to purge (repeatable)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
