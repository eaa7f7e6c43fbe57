package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/saint0x/repochecker/pkg/log"
)

// ErrNotAFile is returned by GetContent when the path resolves to a directory listing.
var ErrNotAFile = errors.New("path is not a single file")

// Client handles GitHub operations for one set of credentials
type Client struct {
	client  *github.Client
	logger  *log.Logger
	timeout time.Duration
}

// New creates a client authenticated with a static token
func New(logger *log.Logger, token, baseURL string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return newClient(logger, tc, baseURL, timeout)
}

// newClient wraps an authenticated http.Client, pointing it at baseURL when set.
func newClient(logger *log.Logger, hc *http.Client, baseURL string, timeout time.Duration) (*Client, error) {
	gh := github.NewClient(hc)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
	}
	return &Client{
		client:  gh,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// bound applies the per-call timeout to ctx
func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GetTree lists the tree at ref, recursing into subtrees when recursive is set
func (c *Client) GetTree(ctx context.Context, owner, repo, ref string, recursive bool) (*github.Tree, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	tree, _, err := c.client.Git.GetTree(ctx, owner, repo, ref, recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree %s/%s@%s: %w", owner, repo, ref, err)
	}
	if tree.GetTruncated() {
		c.logger.Debug("Tree for %s/%s@%s was truncated by the API", owner, repo, ref)
	}
	return tree, nil
}

// GetContent fetches a single file at ref
func (c *Client) GetContent(ctx context.Context, owner, repo, path, ref string) (*github.RepositoryContent, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	file, _, _, err := c.client.Repositories.GetContents(
		ctx,
		owner,
		repo,
		path,
		&github.RepositoryContentGetOptions{Ref: ref},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content for %s: %w", path, err)
	}
	if file == nil {
		return nil, ErrNotAFile
	}
	return file, nil
}

// CreateIssue opens a new issue
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	issue, _, err := c.client.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return issue, nil
}

// GetRepository fetches repository metadata
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	repository, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return repository, nil
}

// ParseRepoURL parses a GitHub URL into owner and repo
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	// Handle different URL formats
	repoURL = strings.TrimSuffix(repoURL, ".git")

	// Handle SSH URLs (git@github.com:owner/repo)
	if strings.HasPrefix(repoURL, "git@github.com:") {
		parts := strings.Split(strings.TrimPrefix(repoURL, "git@github.com:"), "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid SSH repository URL format")
		}
		return parts[0], parts[1], nil
	}

	// Handle HTTPS URLs
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository URL format")
	}

	return parts[0], parts[1], nil
}
