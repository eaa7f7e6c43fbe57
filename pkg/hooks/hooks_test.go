package hooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/pipeline"
)

const testSecret = "s3cret"

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newRequest(event, body, secret string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/github/webhooks", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-GitHub-Event", event)
	r.Header.Set("X-GitHub-Delivery", "delivery-1")
	if secret != "" {
		r.Header.Set("X-Hub-Signature-256", sign(body, secret))
	}
	return r
}

const pushPayload = `{
  "ref": "%s",
  "repository": {
    "name": "demo",
    "full_name": "octo/demo",
    "description": "A demo",
    "default_branch": "main",
    "owner": {"login": "octo", "name": "octo"}
  },
  "installation": {"id": 1234}
}`

const repositoryPayload = `{
  "action": "%s",
  "repository": {
    "name": "fresh",
    "full_name": "octo/fresh",
    "default_branch": "trunk",
    "owner": {"login": "octo"}
  },
  "installation": {"id": 5678}
}`

func payload(format, arg string) string {
	return strings.Replace(format, "%s", arg, 1)
}

func TestParse(t *testing.T) {
	h := New(log.NewWithWriter(io.Discard, true), testSecret)

	tests := []struct {
		name    string
		event   string
		body    string
		secret  string
		want    *pipeline.Target
		wantErr error
	}{
		{
			name:   "push to default branch",
			event:  "push",
			body:   payload(pushPayload, "refs/heads/main"),
			secret: testSecret,
			want: &pipeline.Target{
				Repo: pipeline.Repository{
					Owner:         "octo",
					Name:          "demo",
					FullName:      "octo/demo",
					Description:   "A demo",
					DefaultBranch: "main",
				},
				InstallationID: 1234,
				Trigger:        pipeline.TriggerPush,
				DeliveryID:     "delivery-1",
			},
		},
		{
			name:    "push to feature branch",
			event:   "push",
			body:    payload(pushPayload, "refs/heads/feature-x"),
			secret:  testSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:    "push of a tag named like the branch",
			event:   "push",
			body:    payload(pushPayload, "refs/tags/main"),
			secret:  testSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:   "repository created",
			event:  "repository",
			body:   payload(repositoryPayload, "created"),
			secret: testSecret,
			want: &pipeline.Target{
				Repo: pipeline.Repository{
					Owner:         "octo",
					Name:          "fresh",
					FullName:      "octo/fresh",
					DefaultBranch: "trunk",
				},
				InstallationID: 5678,
				Trigger:        pipeline.TriggerRepositoryCreated,
				DeliveryID:     "delivery-1",
			},
		},
		{
			name:    "repository deleted",
			event:   "repository",
			body:    payload(repositoryPayload, "deleted"),
			secret:  testSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:    "ping",
			event:   "ping",
			body:    `{"zen":"Keep it logically awesome."}`,
			secret:  testSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:    "other event",
			event:   "issues",
			body:    `{"action":"opened"}`,
			secret:  testSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:    "bad signature",
			event:   "push",
			body:    payload(pushPayload, "refs/heads/main"),
			secret:  "wrong",
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unsigned",
			event:   "push",
			body:    payload(pushPayload, "refs/heads/main"),
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "malformed body",
			event:   "push",
			body:    `{"ref":`,
			secret:  testSecret,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "push without repository",
			event:   "push",
			body:    `{"ref":"refs/heads/main"}`,
			secret:  testSecret,
			wantErr: ErrMissingRepository,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Parse(newRequest(tt.event, tt.body, tt.secret))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				if got != nil {
					t.Errorf("Parse() target = %+v, want nil", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("Parse() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestParse_NoSecret(t *testing.T) {
	h := New(log.NewWithWriter(io.Discard, true), "")

	got, err := h.Parse(newRequest("push", payload(pushPayload, "refs/heads/main"), ""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Repo.FullName != "octo/demo" {
		t.Errorf("FullName = %q", got.Repo.FullName)
	}
}

func TestParse_UnsupportedContentType(t *testing.T) {
	h := New(log.NewWithWriter(io.Discard, true), "")

	r := newRequest("push", payload(pushPayload, "refs/heads/main"), "")
	r.Header.Set("Content-Type", "text/plain")
	if _, err := h.Parse(r); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Parse() error = %v, want %v", err, ErrInvalidPayload)
	}
}
