package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/saint0x/repochecker/pkg/ai"
	"github.com/saint0x/repochecker/pkg/log"
)

// Environment holds validated environment configuration
type Environment struct {
	Port          int    `env:"PORT,default=3000"`
	WebhookPath   string `env:"WEBHOOK_PATH,default=/api/github/webhooks"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// GitHub App credentials. GitHubToken switches to single-token mode.
	AppID          int64  `env:"APP_ID"`
	PrivateKey     string `env:"PRIVATE_KEY"`
	PrivateKeyPath string `env:"PRIVATE_KEY_PATH"`
	GitHubToken    string `env:"GITHUB_TOKEN"`
	GitHubAPIURL   string `env:"GITHUB_API_URL"`

	Model        string `env:"MODEL,default=gemini-2.5-flash"`
	ModelBaseURL string `env:"MODEL_BASE_URL"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	PromptFile   string `env:"PROMPT_FILE"`

	MaxFiles         int      `env:"MAX_FILES,default=10"`
	MaxFileSize      int      `env:"MAX_FILE_SIZE,default=100000"`
	MaxContentChars  int      `env:"MAX_CONTENT_CHARS,default=5000"`
	BinaryExtensions []string `env:"BINARY_EXTENSIONS,default=.jpg,.png,.gif,.mp4,.zip,.pdf"`
	FetchConcurrency int      `env:"FETCH_CONCURRENCY,default=4"`

	IssueLabels []string `env:"ISSUE_LABELS,default=enhancement,ai-suggestion"`
	ProjectURL  string   `env:"PROJECT_URL,default=https://github.com/saint0x/repochecker"`

	GitHubTimeout time.Duration `env:"GITHUB_TIMEOUT,default=30s"`
	ModelTimeout  time.Duration `env:"MODEL_TIMEOUT,default=2m"`
	RunTimeout    time.Duration `env:"RUN_TIMEOUT,default=5m"`

	ClientCacheSize int  `env:"CLIENT_CACHE_SIZE,default=128"`
	Debug           bool `env:"DEBUG,default=false"`
}

// Load reads an optional .env file and decodes the process environment.
func Load(ctx context.Context, logger *log.Logger) (*Environment, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warning("Failed to load .env file: %v", err)
	}
	return LoadFrom(ctx, logger, envconfig.OsLookuper())
}

// LoadFrom decodes and validates the environment served by lookuper.
func LoadFrom(ctx context.Context, logger *log.Logger, lookuper envconfig.Lookuper) (*Environment, error) {
	var env Environment
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := env.Validate(logger); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the start-up requirements of the service
func (e *Environment) Validate(logger *log.Logger) error {
	if e.WebhookSecret == "" {
		logger.Warning("No webhook secret defined. Webhook signatures will not be verified.")
	}

	if e.GitHubToken == "" {
		if e.AppID == 0 {
			return fmt.Errorf("APP_ID not configured (set APP_ID or GITHUB_TOKEN)")
		}
		if e.PrivateKey == "" && e.PrivateKeyPath == "" {
			return fmt.Errorf("no private key defined (set PRIVATE_KEY or PRIVATE_KEY_PATH)")
		}
	}

	if key, name := e.ModelKey(); key == "" {
		return fmt.Errorf("%s not configured for model %q", name, e.Model)
	}

	if e.MaxFiles <= 0 {
		return fmt.Errorf("MAX_FILES must be positive, got %d", e.MaxFiles)
	}
	if e.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", e.MaxFileSize)
	}
	if e.MaxContentChars <= 0 {
		return fmt.Errorf("MAX_CONTENT_CHARS must be positive, got %d", e.MaxContentChars)
	}
	if e.FetchConcurrency <= 0 {
		e.FetchConcurrency = 1
	}
	return nil
}

// ModelKey returns the API key and its variable name for the configured model.
func (e *Environment) ModelKey() (key, name string) {
	switch ai.ProviderFor(e.Model) {
	case ai.ProviderAnthropic:
		return e.AnthropicKey, "ANTHROPIC_API_KEY"
	case ai.ProviderOpenAI:
		return e.OpenAIKey, "OPENAI_API_KEY"
	default:
		return e.GeminiKey, "GEMINI_API_KEY"
	}
}

// ReadPrivateKey returns the App private key from PRIVATE_KEY or PRIVATE_KEY_PATH.
func (e *Environment) ReadPrivateKey() ([]byte, error) {
	if e.PrivateKey != "" {
		// Keys passed through env files often carry escaped newlines.
		return []byte(strings.ReplaceAll(e.PrivateKey, `\n`, "\n")), nil
	}
	data, err := os.ReadFile(e.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return data, nil
}
