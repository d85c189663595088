// Package remote talks to the execution backend that runs sessions
// elsewhere, and caches what it learns. The backend has no change
// notification, so unlike the local cache this one is TTL-gated.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ccdeck/ccdeck/pkg/transcript"
)

// Project is one remote project that has sessions.
type Project struct {
	Name           string    `json:"name"`
	EncodedPath    string    `json:"encodedPath"`
	SessionCount   int       `json:"sessionCount"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// SessionSummary is the backend's per-session listing entry.
type SessionSummary struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	MessageCount   int       `json:"messageCount"`
	Preview        string    `json:"preview"`
}

// Client is the remote backend surface the cache consumes. The backend
// serves the same transcript-record shape the local agent writes, so the
// transcript parser is reused verbatim on its responses.
type Client interface {
	Projects(ctx context.Context) ([]Project, error)
	Sessions(ctx context.Context, projectID string) ([]SessionSummary, error)
	Records(ctx context.Context, sessionID, projectID string) ([]transcript.Record, error)
	Health(ctx context.Context) error
}

// HTTPClient implements Client over the backend's HTTP API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/api/projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *HTTPClient) Sessions(ctx context.Context, projectID string) ([]SessionSummary, error) {
	var sessions []SessionSummary
	path := "/api/sessions/" + url.PathEscape(projectID)
	if err := c.get(ctx, path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *HTTPClient) Records(ctx context.Context, sessionID, projectID string) ([]transcript.Record, error) {
	var payload struct {
		Records json.RawMessage `json:"records"`
	}
	path := fmt.Sprintf("/api/messages/%s?project=%s",
		url.PathEscape(sessionID), url.QueryEscape(projectID))
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	if len(payload.Records) == 0 {
		return nil, nil
	}
	return transcript.DecodeRecords(payload.Records)
}

func (c *HTTPClient) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	return c.get(ctx, "/api/status", &status)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote fetch %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
