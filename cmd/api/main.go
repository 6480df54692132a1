package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"queuectl/internal/config"
	"queuectl/internal/handler"
	"queuectl/internal/metrics"
	"queuectl/internal/repository"
	"queuectl/internal/service"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the config file")
	dbPath := flag.String("db", "", "job store location, overrides the config")
	port := flag.String("port", "8080", "HTTP server port")
	flag.Parse()

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

	rateLimiter := service.NewRateLimiter(cfg.SubmitRateLimit, time.Minute)
	jobHandler := handler.NewJobHandler(queue, metricsInstance, rateLimiter)

	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           jobHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("API server starting on port %s", *port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-sigChan
	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("error closing server: %v", err)
	}
	log.Println("server stopped")
}
