package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/storyprint/printqueue/internal/job"
)

// serviceFunc opens the queue client lazily so --help never needs a database.
type serviceFunc func(ctx context.Context) (job.JobServiceInterface, error)

func NewRootCmd(open serviceFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and administer the print job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "print raw JSON instead of tables")

	root.AddCommand(
		ListCmd(open),
		GetCmd(open),
		StatsCmd(open),
		StuckCmd(open),
		EnqueueCmd(open),
		CancelCmd(open, false),
		CancelCmd(open, true),
		RetriggerCmd(open),
		ClearCmd(open),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
