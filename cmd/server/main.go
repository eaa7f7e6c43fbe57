package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"

	"github.com/saint0x/repochecker/pkg/app"
	"github.com/saint0x/repochecker/pkg/config"
	"github.com/saint0x/repochecker/pkg/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize logger
	logger := log.New(os.Getenv("DEBUG") == "true")
	ctx = logger.Context(ctx)

	logger.Step("Starting RepoChecker server...")

	// Validate environment
	env, err := config.Load(ctx, logger)
	if err != nil {
		clog.FatalContextf(ctx, "Environment validation failed: %v", err)
	}
	if env.Debug && !logger.IsDebug() {
		logger = log.New(true)
		ctx = logger.Context(ctx)
	}
	logger.Success("Environment validated")

	// Initialize components
	a, err := app.New(ctx, logger, env)
	if err != nil {
		clog.FatalContextf(ctx, "Failed to initialize components: %v", err)
	}
	srv, err := a.NewServer()
	if err != nil {
		clog.FatalContextf(ctx, "Failed to create server: %v", err)
	}
	logger.Success("Server initialized")

	// Serve until SIGINT/SIGTERM
	if err := srv.Start(ctx); err != nil {
		clog.FatalContextf(ctx, "Server error: %v", err)
	}
	logger.Success("Server shutdown complete")
}
