package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"queuectl/internal/config"
	"queuectl/internal/executor"
	"queuectl/internal/metrics"
	"queuectl/internal/repository"
	"queuectl/internal/service"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the config file")
	dbPath := flag.String("db", "", "job store location, overrides the config")
	count := flag.Int("count", 1, "number of workers to run")
	flag.Parse()

	if *count < 1 {
		log.Fatalf("count must be at least 1, got %d", *count)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dsn := cfg.StoreDSN()
	if *dbPath != "" {
		dsn = *dbPath
	}
	if cfg.StoreDriver != config.DriverPostgres {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			log.Fatalf("failed to create data directory: %v", err)
		}
	}

	// Initialize repository
	repo, err := repository.Open(cfg.StoreDriver, dsn)
	if err != nil {
		log.Fatalf("failed to initialize repository: %v", err)
	}
	defer repo.Close()

	metricsInstance := metrics.NewMetrics()

	opts := service.DefaultOptions()
	opts.MaxRetries = cfg.MaxRetries
	opts.BackoffBase = cfg.BackoffBase
	queue := service.NewQueueService(repo, metricsInstance, opts)

	workerCfg := service.WorkerConfig{
		PollInterval: time.Duration(cfg.PollInterval * float64(time.Second)),
		Timeout:      time.Duration(cfg.WorkerTimeout * float64(time.Second)),
	}
	exec := executor.NewShellExecutor()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("shutting down workers, waiting for running jobs...")
		cancel()
	}()

	log.Printf("starting %d worker(s), polling for jobs...", *count)
	service.RunPool(ctx, *count, func(i int) *service.WorkerService {
		return service.NewWorkerService(queue, exec, workerCfg)
	})

	log.Printf("workers stopped, metrics: %v", metricsInstance.GetSnapshot())
}
