// Package app wires configuration into a ready-to-run pipeline and server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/saint0x/repochecker/pkg/ai"
	"github.com/saint0x/repochecker/pkg/config"
	gh "github.com/saint0x/repochecker/pkg/github"
	"github.com/saint0x/repochecker/pkg/hooks"
	"github.com/saint0x/repochecker/pkg/issue"
	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/pipeline"
	"github.com/saint0x/repochecker/pkg/sampler"
	"github.com/saint0x/repochecker/pkg/server"
)

// App holds the long-lived components of the service
type App struct {
	Env      *config.Environment
	Logger   *log.Logger
	Clients  *gh.Clients
	Pipeline *pipeline.Pipeline
}

// New builds every component from env. The model client is created once here.
func New(ctx context.Context, logger *log.Logger, env *config.Environment) (*App, error) {
	clients, err := newClients(logger, env)
	if err != nil {
		return nil, err
	}

	key, _ := env.ModelKey()
	completer, err := ai.NewCompleter(ctx, ai.ProviderConfig{
		Model:   env.Model,
		APIKey:  key,
		BaseURL: env.ModelBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	prompt := ai.DefaultPromptConfig()
	if env.PromptFile != "" {
		if prompt, err = ai.LoadPromptConfig(env.PromptFile); err != nil {
			return nil, err
		}
	}

	a := &App{Env: env, Logger: logger, Clients: clients}
	a.Pipeline = pipeline.New(logger, a.resolve,
		sampler.New(sampler.Options{
			MaxFiles:         env.MaxFiles,
			MaxFileSize:      env.MaxFileSize,
			BinaryExtensions: env.BinaryExtensions,
			Concurrency:      env.FetchConcurrency,
		}),
		ai.New(logger, completer,
			ai.WithPromptConfig(prompt),
			ai.WithMaxContentChars(env.MaxContentChars),
			ai.WithTimeout(env.ModelTimeout),
		),
		issue.NewPublisher(env.IssueLabels, env.ProjectURL),
	)

	if logger.IsDebug() {
		logger.Debug("Using model %s", completer.Name())
	}
	return a, nil
}

func newClients(logger *log.Logger, env *config.Environment) (*gh.Clients, error) {
	if env.GitHubToken != "" {
		return gh.NewTokenClients(logger, env.GitHubToken, env.GitHubAPIURL, env.GitHubTimeout)
	}
	key, err := env.ReadPrivateKey()
	if err != nil {
		return nil, err
	}
	return gh.NewAppClients(logger, env.AppID, key, env.GitHubAPIURL, env.GitHubTimeout, env.ClientCacheSize)
}

// resolve adapts Clients to the pipeline's resolver
func (a *App) resolve(ctx context.Context, installationID int64) (pipeline.RepoClient, error) {
	c, err := a.Clients.ForInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewServer creates the webhook server for this app
func (a *App) NewServer() (*server.Server, error) {
	return server.New(a.Logger, hooks.New(a.Logger, a.Env.WebhookSecret), a.Pipeline, server.Options{
		Port:        a.Env.Port,
		WebhookPath: a.Env.WebhookPath,
		RunTimeout:  a.Env.RunTimeout,
	})
}

// Target looks up repoURL and returns a manual target for it.
// It needs a static token, since there is no installation to act for.
func (a *App) Target(ctx context.Context, repoURL string) (pipeline.Target, error) {
	owner, name, err := gh.ParseRepoURL(repoURL)
	if err != nil {
		return pipeline.Target{}, err
	}

	client, err := a.Clients.ForInstallation(ctx, 0)
	if errors.Is(err, gh.ErrNoInstallation) {
		return pipeline.Target{}, fmt.Errorf("analyzing a repository directly requires GITHUB_TOKEN")
	} else if err != nil {
		return pipeline.Target{}, err
	}

	repo, err := client.GetRepository(ctx, owner, name)
	if err != nil {
		return pipeline.Target{}, err
	}

	fullName := repo.GetFullName()
	if fullName == "" {
		fullName = owner + "/" + name
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return pipeline.Target{
		Repo: pipeline.Repository{
			Owner:         owner,
			Name:          name,
			FullName:      fullName,
			Description:   repo.GetDescription(),
			DefaultBranch: branch,
		},
		Trigger: pipeline.TriggerManual,
	}, nil
}
