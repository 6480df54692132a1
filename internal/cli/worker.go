package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"queuectl/internal/executor"
	"queuectl/internal/service"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCmd(a *app) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage worker processes",
	}

	var count int
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start one or more workers in the foreground",
		Long: `Start workers that claim and execute jobs until interrupted. On SIGINT or
SIGTERM each worker finishes the job it is running, reports the outcome and
exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Printf("starting %d worker(s), press Ctrl+C to shut down gracefully", count)
			runWorkers(ctx, queue, a.workerConfig(), count)
			log.Printf("all workers have shut down, metrics: %s", formatSnapshot(a.metrics.GetSnapshot()))
			return nil
		},
	}
	startCmd.Flags().IntVar(&count, "count", 1, "number of workers to start")

	workerCmd.AddCommand(startCmd)
	return workerCmd
}

func runWorkers(ctx context.Context, queue *service.QueueService, cfg service.WorkerConfig, count int) {
	exec := executor.NewShellExecutor()
	service.RunPool(ctx, count, func(i int) *service.WorkerService {
		return service.NewWorkerService(queue, exec, cfg)
	})
}

func formatSnapshot(snapshot map[string]int64) string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, snapshot[k])
	}
	return s
}
