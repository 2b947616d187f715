// worker runs the Worker Client control loop: lease a task, drive model
// inference, report progress, upload results.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nikitavbv/sandbox/internal/bootstrap"
	runtimeconfig "github.com/nikitavbv/sandbox/internal/shared/config"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

func main() {
	var configFile, ownerID string

	root := &cobra.Command{
		Use:   "worker",
		Short: "runs a dispatch plane worker client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, ownerID)
		},
	}
	root.Flags().StringVar(&configFile, "config", "config.yaml", "path to the worker config file")
	root.Flags().StringVar(&ownerID, "owner-id", "", "identifies this worker to the lease protocol (defaults to a random id)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, ownerID string) error {
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

	if ownerID == "" {
		ownerID = "worker-" + uuid.NewString()
	}

	loop, err := bootstrap.BuildWorker(cfg, ownerID, logger)
	if err != nil {
		return fmt.Errorf("bootstrap worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker loop: %w", err)
	}
	return nil
}

func newLogger(environment string) (logging.Logger, error) {
	if environment == "development" {
		return logging.NewDevelopment()
	}
	return logging.New()
}
