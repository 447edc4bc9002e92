// Package tracker defines the outbound contract with the issue tracker: the
// activity and plan payloads the bridge posts, the narrow Client interface
// the projection engine consumes, and an HTTP implementation of it.
package tracker

import "context"

// ContentType discriminates activity content payloads.
type ContentType string

const (
	ContentThought     ContentType = "thought"
	ContentResponse    ContentType = "response"
	ContentAction      ContentType = "action"
	ContentError       ContentType = "error"
	ContentPrompt      ContentType = "prompt"
	ContentElicitation ContentType = "elicitation"
)

// Content is the typed payload of an activity.
type Content struct {
	Type      ContentType `json:"type"`
	Body      string      `json:"body,omitempty"`
	Action    string      `json:"action,omitempty"`
	Parameter string      `json:"parameter,omitempty"`
	Result    string      `json:"result,omitempty"`
}

// Activity is one projected unit of agent behavior. Ephemeral activities are
// transient; the tracker visually replaces them when a later final activity
// arrives.
type Activity struct {
	AgentSessionID string  `json:"agentSessionId"`
	Content        Content `json:"content"`
	Ephemeral      bool    `json:"ephemeral,omitempty"`
}

// PlanItem is one entry of the mirrored session plan.
type PlanItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Client is the tracker surface the projection engine writes through. Both
// operations are already serialized through the bridge's rate limiter by the
// time they are called.
type Client interface {
	// CreateActivity posts one activity to the session's activity feed.
	CreateActivity(ctx context.Context, activity Activity) error

	// UpdateSessionPlan replaces the session's mirrored plan.
	UpdateSessionPlan(ctx context.Context, sessionID string, items []PlanItem) error
}

// Issue is the slice of a tracker issue the CLI surface renders.
type Issue struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Assignee    string `json:"assignee,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// IssueFilter narrows issue listings.
type IssueFilter struct {
	State string
}
