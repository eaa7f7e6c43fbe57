// Package hooks turns GitHub webhook deliveries into analysis targets.
package hooks

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/pipeline"
)

var (
	// ErrIgnoredEvent is returned for deliveries that do not start a run
	ErrIgnoredEvent = errors.New("event ignored")

	// ErrMissingRepository is returned when a triggering event carries no repository
	ErrMissingRepository = errors.New("event has no repository")

	// ErrInvalidPayload is returned when the signature or body is rejected
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Handler validates and interprets webhook deliveries
type Handler struct {
	logger *log.Logger
	secret []byte
}

// New creates a new Handler. An empty secret disables signature checks
// unless the delivery is signed.
func New(logger *log.Logger, secret string) *Handler {
	return &Handler{
		logger: logger,
		secret: []byte(secret),
	}
}

// Parse validates r and returns the target it should trigger.
// Deliveries that should not trigger a run return ErrIgnoredEvent.
func (h *Handler) Parse(r *http.Request) (*pipeline.Target, error) {
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	eventType := github.WebHookType(r)
	delivery := github.DeliveryID(r)
	h.logger.Debug("Received %s delivery %s", eventType, delivery)

	switch eventType {
	case "push", "repository":
	default:
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var target *pipeline.Target
	switch e := event.(type) {
	case *github.RepositoryEvent:
		target, err = fromRepositoryEvent(e)
	case *github.PushEvent:
		target, err = fromPushEvent(e)
	default:
		err = fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}
	if err != nil {
		return nil, err
	}
	target.DeliveryID = delivery
	return target, nil
}

func fromRepositoryEvent(e *github.RepositoryEvent) (*pipeline.Target, error) {
	if action := e.GetAction(); action != "created" {
		return nil, fmt.Errorf("%w: repository.%s", ErrIgnoredEvent, action)
	}
	repo := e.GetRepo()
	if repo == nil {
		return nil, ErrMissingRepository
	}

	r := pipeline.Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
	if err := complete(&r); err != nil {
		return nil, err
	}
	return &pipeline.Target{
		Repo:           r,
		InstallationID: e.GetInstallation().GetID(),
		Trigger:        pipeline.TriggerRepositoryCreated,
	}, nil
}

func fromPushEvent(e *github.PushEvent) (*pipeline.Target, error) {
	repo := e.GetRepo()
	if repo == nil {
		return nil, ErrMissingRepository
	}

	owner := repo.GetOwner().GetLogin()
	if owner == "" {
		owner = repo.GetOwner().GetName()
	}
	r := pipeline.Repository{
		Owner:         owner,
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
	if err := complete(&r); err != nil {
		return nil, err
	}

	if ref := e.GetRef(); ref != "refs/heads/"+r.DefaultBranch {
		return nil, fmt.Errorf("%w: push to %s", ErrIgnoredEvent, ref)
	}

	return &pipeline.Target{
		Repo:           r,
		InstallationID: e.GetInstallation().GetID(),
		Trigger:        pipeline.TriggerPush,
	}, nil
}

// complete fills owner and name from the full name and checks the result is usable
func complete(r *pipeline.Repository) error {
	if owner, name, ok := strings.Cut(r.FullName, "/"); ok {
		if r.Owner == "" {
			r.Owner = owner
		}
		if r.Name == "" {
			r.Name = name
		}
	}
	if r.FullName == "" && r.Owner != "" && r.Name != "" {
		r.FullName = r.Owner + "/" + r.Name
	}
	if r.Owner == "" || r.Name == "" {
		return ErrMissingRepository
	}
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	return nil
}
