package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"queuectl/internal/models"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (text, json, yaml)", format)
	}
}

// printStructured writes v as JSON or YAML. It reports false for text output.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func printJobTable(w io.Writer, jobs []*models.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No jobs found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tATTEMPTS\tMAX_RETRIES\tUPDATED\tCOMMAND")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			job.ID, job.State, job.Attempts, job.MaxRetries,
			job.UpdatedAt.Local().Format(time.DateTime), truncate(job.Command, 50))
	}
	return tw.Flush()
}

func printJob(w io.Writer, job *models.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Command:\t%s\n", job.Command)
	fmt.Fprintf(tw, "State:\t%s\n", job.State)
	fmt.Fprintf(tw, "Attempts:\t%d/%d\n", job.Attempts, job.MaxRetries)
	fmt.Fprintf(tw, "Created:\t%s\n", job.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(tw, "Updated:\t%s\n", job.UpdatedAt.Local().Format(time.RFC3339))
	if job.State == models.StatePending {
		fmt.Fprintf(tw, "Next eligible:\t%s\n", job.NextEligibleAt.Local().Format(time.RFC3339))
	}
	if job.Owner != nil {
		fmt.Fprintf(tw, "Owner:\t%s\n", *job.Owner)
	}
	if job.LeasedAt != nil {
		fmt.Fprintf(tw, "Leased:\t%s\n", job.LeasedAt.Local().Format(time.RFC3339))
	}
	if job.LastError != "" {
		fmt.Fprintf(tw, "Last error:\t%s\n", strings.ReplaceAll(job.LastError, "\n", "\n\t"))
	}
	return tw.Flush()
}

func validLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", limit)
	}
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
