package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/saint0x/repochecker/pkg/log"
)

// ErrNoInstallation is returned in App mode when an event carries no installation.
var ErrNoInstallation = errors.New("event has no app installation")

// Clients hands out an authenticated Client per App installation.
// In token mode every installation shares the same client.
type Clients struct {
	logger  *log.Logger
	static  *Client
	apps    *ghinstallation.AppsTransport
	baseURL string
	timeout time.Duration
	cache   *lru.Cache[int64, *Client]
}

// NewTokenClients returns Clients that always use the given token
func NewTokenClients(logger *log.Logger, token, baseURL string, timeout time.Duration) (*Clients, error) {
	c, err := New(logger, token, baseURL, timeout)
	if err != nil {
		return nil, err
	}
	return &Clients{logger: logger, static: c, timeout: timeout}, nil
}

// NewAppClients returns Clients that mint installation tokens for a GitHub App
func NewAppClients(logger *log.Logger, appID int64, privateKey []byte, baseURL string, timeout time.Duration, cacheSize int) (*Clients, error) {
	atr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create app transport: %w", err)
	}
	if baseURL != "" {
		atr.BaseURL = strings.TrimRight(baseURL, "/")
	}

	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[int64, *Client](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create client cache: %w", err)
	}

	return &Clients{
		logger:  logger,
		apps:    atr,
		baseURL: baseURL,
		timeout: timeout,
		cache:   cache,
	}, nil
}

// ForInstallation returns the client for installationID
func (c *Clients) ForInstallation(_ context.Context, installationID int64) (*Client, error) {
	if c.static != nil {
		return c.static, nil
	}
	if installationID == 0 {
		return nil, ErrNoInstallation
	}

	if client, ok := c.cache.Get(installationID); ok {
		return client, nil
	}

	// Installation transports refresh their own tokens, so cached clients stay valid.
	itr := ghinstallation.NewFromAppsTransport(c.apps, installationID)
	client, err := newClient(c.logger, &http.Client{Transport: itr}, c.baseURL, c.timeout)
	if err != nil {
		return nil, err
	}
	c.cache.Add(installationID, client)
	c.logger.Debug("Created client for installation %d", installationID)
	return client, nil
}
