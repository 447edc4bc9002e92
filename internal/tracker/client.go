package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const requestTimeout = 30 * time.Second

// HTTPClient talks to the tracker's HTTP API. It implements Client plus the
// thin issue and session operations the CLI commands wrap.
type HTTPClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewHTTPClient creates a tracker client for the given base URL and API key.
func NewHTTPClient(baseURL, apiKey string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: requestTimeout},
		log:     log.With().Str("component", "tracker").Logger(),
	}
}

// CreateActivity posts one activity to the session's activity feed.
func (c *HTTPClient) CreateActivity(ctx context.Context, activity Activity) error {
	path := fmt.Sprintf("/agent-sessions/%s/activities", url.PathEscape(activity.AgentSessionID))
	return c.do(ctx, http.MethodPost, path, activity, nil)
}

// UpdateSessionPlan replaces the session's mirrored plan.
func (c *HTTPClient) UpdateSessionPlan(ctx context.Context, sessionID string, items []PlanItem) error {
	path := fmt.Sprintf("/agent-sessions/%s/plan", url.PathEscape(sessionID))
	body := map[string]any{"plan": items}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// Issue fetches a single issue by identifier.
func (c *HTTPClient) Issue(ctx context.Context, id string) (Issue, error) {
	var issue Issue
	err := c.do(ctx, http.MethodGet, "/issues/"+url.PathEscape(id), nil, &issue)
	return issue, err
}

// Issues lists issues matching the filter.
func (c *HTTPClient) Issues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	path := "/issues"
	if filter.State != "" {
		path += "?state=" + url.QueryEscape(filter.State)
	}

	var issues []Issue
	err := c.do(ctx, http.MethodGet, path, nil, &issues)
	return issues, err
}

// MoveIssue transitions an issue to a new workflow state.
func (c *HTTPClient) MoveIssue(ctx context.Context, id, state string) error {
	path := fmt.Sprintf("/issues/%s/move", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, map[string]string{"state": state}, nil)
}

// CommentIssue adds a markdown comment to an issue.
func (c *HTTPClient) CommentIssue(ctx context.Context, id, body string) error {
	path := fmt.Sprintf("/issues/%s/comments", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, nil)
}

// AttachSessionURL links an external URL to an agent session.
func (c *HTTPClient) AttachSessionURL(ctx context.Context, sessionID, rawURL string) error {
	path := fmt.Sprintf("/agent-sessions/%s/links", url.PathEscape(sessionID))
	return c.do(ctx, http.MethodPost, path, map[string]string{"url": rawURL}, nil)
}

// RespondElicitation answers a pending elicitation activity on a session.
func (c *HTTPClient) RespondElicitation(ctx context.Context, sessionID, activityID, answer string) error {
	path := fmt.Sprintf("/agent-sessions/%s/elicitation", url.PathEscape(sessionID))
	body := map[string]string{"activityId": activityID, "answer": answer}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// do issues one JSON request. Non-2xx responses become errors carrying the
// status and a truncated body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
