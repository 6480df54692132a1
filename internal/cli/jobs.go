package cli

import (
	"fmt"
	"queuectl/internal/models"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func enqueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <command | job-json>",
		Short: "Add a job to the queue",
		Long: `Add a job to the queue. The argument is either a bare shell command or a
JSON object such as {"id":"job1","command":"sleep 2","max_retries":3}.`,
		Example: `  queuectl enqueue "echo hello"
  queuectl enqueue '{"id":"job1","command":"sleep 2"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			job, err := queue.EnqueueRaw(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Job %s enqueued.\n", job.ID)
			return nil
		},
	}
}

func statusCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a summary of job states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			stats, err := queue.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, output, stats); ok {
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STATE\tCOUNT")
			for _, state := range models.AllStates {
				fmt.Fprintf(tw, "%s\t%d\n", state, stats.States[state])
			}
			fmt.Fprintf(tw, "total\t%d\n", stats.Total)
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var (
		state  string
		limit  int
		offset int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			if err := validLimit(limit); err != nil {
				return err
			}
			if offset < 0 {
				return fmt.Errorf("--offset must be >= 0, got %d", offset)
			}
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			jobs, err := queue.ListJobs(cmd.Context(), models.JobState(state), limit, offset)
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

	cmd.Flags().StringVar(&state, "state", "", "only list jobs in this state (pending, processing, completed, failed, dead)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func infoCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "info <job-id>",
		Short: "Show the details of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			job, err := queue.GetJob(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, output, job); ok {
				return err
			}
			return printJob(out, job)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}
