package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"queuectl/internal/config"
	"queuectl/internal/metrics"
	"queuectl/internal/repository"
	"queuectl/internal/service"
	"time"
)

// app carries state shared by every subcommand: the loaded config and a
// lazily opened job store.
type app struct {
	configPath string
	dbPath     string

	cfg     *config.Config
	metrics *metrics.Metrics
	repo    *repository.SQLRepository
	queue   *service.QueueService
}

func newApp() *app {
	return &app{metrics: metrics.NewMetrics()}
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) saveConfig() error {
	return a.cfg.Save(a.configPath)
}

func (a *app) storeDSN() string {
	if a.dbPath != "" {
		return a.dbPath
	}
	return a.cfg.StoreDSN()
}

// openQueue opens the job store on first use and returns the queue manager
func (a *app) openQueue() (*service.QueueService, error) {
	if a.queue != nil {
		return a.queue, nil
	}

	dsn := a.storeDSN()
	if a.cfg.StoreDriver != config.DriverPostgres {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	repo, err := repository.Open(a.cfg.StoreDriver, dsn)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.queue = service.NewQueueService(repo, a.metrics, a.queueOptions())
	return a.queue, nil
}

func (a *app) queueOptions() service.Options {
	opts := service.DefaultOptions()
	opts.MaxRetries = a.cfg.MaxRetries
	opts.BackoffBase = a.cfg.BackoffBase
	return opts
}

func (a *app) workerConfig() service.WorkerConfig {
	return service.WorkerConfig{
		PollInterval: seconds(a.cfg.PollInterval),
		Timeout:      seconds(a.cfg.WorkerTimeout),
	}
}

func (a *app) close() {
	if a.repo != nil {
		a.repo.Close()
		a.repo = nil
		a.queue = nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
