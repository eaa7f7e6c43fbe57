package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saint0x/repochecker/pkg/hooks"
	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/pipeline"
)

// DefaultWebhookPath is where GitHub delivers events
const DefaultWebhookPath = "/api/github/webhooks"

// MaxPayloadBytes is GitHub's cap on webhook payloads
const MaxPayloadBytes = 25 << 20

// EventParser turns a webhook request into a target
type EventParser interface {
	Parse(r *http.Request) (*pipeline.Target, error)
}

// Runner executes one analysis
type Runner interface {
	Run(ctx context.Context, t pipeline.Target) pipeline.Outcome
}

// Options configures the server
type Options struct {
	Port        int
	WebhookPath string
	RunTimeout  time.Duration

	// MaxPayloadBytes limits webhook bodies; zero means MaxPayloadBytes
	MaxPayloadBytes int64
}

// Server receives webhooks and runs analyses in the background
type Server struct {
	logger *log.Logger
	parser EventParser
	runner Runner
	opts   Options

	srv  *http.Server
	addr string
	mu   sync.Mutex
	runs sync.WaitGroup
}

// New creates a new server instance
func New(logger *log.Logger, parser EventParser, runner Runner, opts Options) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("event parser is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = DefaultWebhookPath
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = MaxPayloadBytes
	}

	if logger.IsDebug() {
		logger.Info("Initializing server with components:")
		logger.Info("- Event Parser: ✓")
		logger.Info("- Runner: ✓")
	}

	return &Server{
		logger: logger,
		parser: parser,
		runner: runner,
		opts:   opts,
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.WebhookPath, s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleStatus)
	return mux
}

// Start serves until ctx is cancelled, then stops the server
func (s *Server) Start(ctx context.Context) error {
	if s.logger.IsDebug() {
		s.logger.Info("Starting server initialization...")
	}

	listener, err := s.findAvailablePort(strconv.Itoa(s.opts.Port))
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.mu.Lock()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = listener.Addr().String()
	srv := s.srv
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
			errc <- err
		}
	}()

	s.logger.Success("Server is running on port %d", actualPort)
	s.logger.Info("Webhook URL: http://localhost:%d%s", actualPort, s.opts.WebhookPath)

	select {
	case <-ctx.Done():
	case err := <-errc:
		_ = s.Stop()
		return fmt.Errorf("server failed: %w", err)
	}
	return s.Stop()
}

// Addr returns the address the server listens on, once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// findAvailablePort tries to find an available port starting from the given port
func (s *Server) findAvailablePort(startPort string) (net.Listener, error) {
	// Try the specified port first
	listener, err := net.Listen("tcp", ":"+startPort)
	if err == nil {
		return listener, nil
	}

	s.logger.Warning("Port %s is in use, searching for available port...", startPort)

	// Try to find a random available port
	listener, err = net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	return listener, nil
}

// Stop stops the HTTP server and waits for in-flight runs
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		// Create a timeout context for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err = srv.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to stop server: %v", err)
			err = fmt.Errorf("failed to stop server: %w", err)
		}
	}

	s.Wait()
	if srv != nil {
		s.logger.Success("Server stopped")
	}
	return err
}

// Wait blocks until every dispatched run has finished
func (s *Server) Wait() {
	s.runs.Wait()
}

// handleWebhook acknowledges a delivery and schedules its run
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.logger.IsDebug() {
		s.logger.Info("Received webhook request from %s", r.RemoteAddr)
	}

	if r.Method != http.MethodPost {
		s.logger.Warning("Invalid method %s from %s", r.Method, r.RemoteAddr)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxPayloadBytes)
	target, err := s.parser.Parse(r)

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.logger.Warning("Rejected webhook from %s: payload over %d bytes", r.RemoteAddr, tooLarge.Limit)
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, hooks.ErrIgnoredEvent):
		s.logger.Debug("Ignoring delivery: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, hooks.ErrMissingRepository):
		s.logger.Warning("Ignoring delivery: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		s.logger.Warning("Rejected webhook from %s: %v", r.RemoteAddr, err)
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
		return
	}

	s.dispatch(*target)
	w.WriteHeader(http.StatusAccepted)
}

// dispatch runs t on its own goroutine, detached from the request
func (s *Server) dispatch(t pipeline.Target) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()

		ctx := context.Background()
		if s.opts.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
			defer cancel()
		}
		s.runner.Run(ctx, t)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

const statusPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>RepoChecker</title>
</head>
<body>
  <h1>RepoChecker</h1>
  <p>RepoChecker is running. Install the GitHub App on a repository to receive AI-powered improvement suggestions as issues.</p>
  <p>Webhooks are received at <code>%s</code>.</p>
</body>
</html>
`

// handleStatus serves a static page at the root
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, statusPage, s.opts.WebhookPath)
}
