package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dlqCmd(a *app) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry jobs in the dead letter queue",
	}

	var (
		limit  int
		output string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			if err := validLimit(limit); err != nil {
				return err
			}
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			jobs, err := queue.ListDeadJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, output, jobs); ok {
				return err
			}
			return printJobTable(out, jobs)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	listCmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")

	retryCmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending with its attempts reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			job, err := queue.RetryFromDLQ(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to retry job %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Job %s moved back to %s.\n", job.ID, job.State)
			return nil
		},
	}

	dlqCmd.AddCommand(listCmd)
	dlqCmd.AddCommand(retryCmd)
	return dlqCmd
}
