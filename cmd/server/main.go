// server runs the Dispatch Authority, Management API, Auth Gateway, and
// Metrics Aggregator behind a single HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nikitavbv/sandbox/internal/bootstrap"
	runtimeconfig "github.com/nikitavbv/sandbox/internal/shared/config"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "server",
		Short: "runs the dispatch plane's server (API + metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "config.yaml", "path to the server config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	if err := runtimeconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfg, err := runtimeconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := bootstrap.BuildServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap server: %w", err)
	}
	defer srv.Cleanup()

	group, groupCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	group.Go(func() error {
		logger.Info("dispatch server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return srv.Sampler.Run(groupCtx)
	})

	if srv.Pusher != nil {
		group.Go(func() error {
			return srv.Pusher.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func newLogger(environment string) (logging.Logger, error) {
	if environment == "development" {
		return logging.NewDevelopment()
	}
	return logging.New()
}
