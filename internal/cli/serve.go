package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"queuectl/internal/handler"
	"queuectl/internal/service"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(a *app) *cobra.Command {
	var (
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally with in-process workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := a.openQueue()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			limiter := service.NewRateLimiter(a.cfg.SubmitRateLimit, time.Minute)
			jobHandler := handler.NewJobHandler(queue, a.metrics, limiter)
			return serve(ctx, addr, jobHandler.Routes(), func(ctx context.Context) {
				if workers > 0 {
					runWorkers(ctx, queue, a.workerConfig(), workers)
				}
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of workers to run alongside the API")
	return cmd
}

// serve runs the HTTP server and background until ctx is cancelled, then
// shuts the server down and waits for background to return.
func serve(ctx context.Context, addr string, h http.Handler, background func(ctx context.Context)) error {
	ctx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		background(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error closing server: %v", err)
	}
	stopBackground()
	wg.Wait()
	log.Println("server stopped")

	return serveErr
}
