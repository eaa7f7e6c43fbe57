package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/saint0x/repochecker/pkg/app"
	"github.com/saint0x/repochecker/pkg/config"
	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/pipeline"
)

var (
	debug = flag.Bool("debug", false, "Enable debug logging")
)

const defaultServerURL = "http://localhost:3000"

func main() {
	flag.Parse()
	logger := log.New(*debug)

	// Parse command
	args := flag.Args()
	if len(args) < 1 {
		printUsage(logger)
		os.Exit(1)
	}

	// Handle commands
	var err error
	switch args[0] {
	case "serve":
		err = serve(logger)

	case "analyze":
		if len(args) != 2 {
			logger.Error("Usage: repochecker analyze <repository-url>")
			os.Exit(1)
		}
		err = analyze(logger, args[1])

	case "check":
		url := defaultServerURL
		if len(args) > 1 {
			url = args[1]
		}
		err = checkHealth(logger, url)

	default:
		logger.Error("Unknown command: %s", args[0])
		printUsage(logger)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the app
func setup(ctx context.Context, logger *log.Logger) (*app.App, error) {
	env, err := config.Load(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("environment validation failed: %w", err)
	}
	return app.New(ctx, withDebug(logger, env), env)
}

// withDebug switches to a debug logger when DEBUG is set in the environment
func withDebug(logger *log.Logger, env *config.Environment) *log.Logger {
	if env.Debug && !logger.IsDebug() {
		return log.New(true)
	}
	return logger
}

func serve(logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		shuttingDown := false
		for sig := range sigCh {
			if shuttingDown {
				// Second signal, force exit
				logger.Error("Force stopping...")
				os.Exit(1)
			}
			logger.Info("Received signal: %v", sig)
			logger.Info("Press Ctrl+C again to force stop")
			shuttingDown = true
			cancel()
		}
	}()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	srv, err := a.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func analyze(logger *log.Logger, repoURL string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}

	logger = a.Logger
	logger.Repo("Target repository: %s", repoURL)
	target, err := a.Target(ctx, repoURL)
	if err != nil {
		return fmt.Errorf("failed to look up repository: %w", err)
	}

	if a.Env.RunTimeout > 0 {
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, a.Env.RunTimeout)
		defer cancelRun()
	}

	out := a.Pipeline.Run(ctx, target)
	if out.State != pipeline.Done {
		return fmt.Errorf("analysis failed during %s: %w", out.FailedStage, out.Err)
	}
	logger.Issue("Issue: %s", out.IssueURL)
	return nil
}

// checkHealth checks if the server is healthy
func checkHealth(logger *log.Logger, baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("server is not running: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	logger.Success("Server is healthy")
	return nil
}

func printUsage(logger *log.Logger) {
	logger.Info("Usage: repochecker [--debug] <command>")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  serve                 Run the webhook server")
	logger.Info("  analyze <repo-url>    Analyze one repository now (needs GITHUB_TOKEN)")
	logger.Info("  check [server-url]    Check if a server is healthy (default %s)", defaultServerURL)
	logger.Info("")
	logger.Info("Flags:")
	logger.Info("  --debug   Enable debug logging")
}
