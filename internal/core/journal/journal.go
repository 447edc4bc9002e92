// Package journal defines the record schema of Claude Code session files and
// a tagged-union decoder over the `type` discriminator. Records the bridge
// does not project (progress, file-history-snapshot, system, and anything
// unknown) decode into a Record with no payload and are skipped upstream.
package journal

import (
	"encoding/json"
	"fmt"
)

// Record type discriminators.
const (
	TypeAssistant = "assistant"
	TypeUser      = "user"
	TypeSummary   = "summary"
	TypeQueueOp   = "queue-operation"
)

// Content block discriminators.
const (
	BlockThinking   = "thinking"
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Record is one decoded journal line. Exactly one of the payload pointers is
// non-nil for the record types the bridge projects.
type Record struct {
	Type      string
	UUID      string
	SessionID string

	Assistant *AssistantRecord
	User      *UserRecord
	Summary   *SummaryRecord
	QueueOp   *QueueOpRecord
}

// AssistantRecord is one assistant message.
type AssistantRecord struct {
	Message           Message `json:"message"`
	IsAPIErrorMessage bool    `json:"isApiErrorMessage,omitempty"`
}

// UserRecord is either a real user prompt (no SourceToolAssistantUUID) or a
// synthetic carrier for tool_result blocks.
type UserRecord struct {
	Message                 Message `json:"message"`
	SourceToolAssistantUUID string  `json:"sourceToolAssistantUUID,omitempty"`
}

// SummaryRecord is a condensed context summary.
type SummaryRecord struct {
	Summary  string `json:"summary"`
	LeafUUID string `json:"leafUuid,omitempty"`
}

// QueueOpRecord is a background-job lifecycle notification.
type QueueOpRecord struct {
	Operation string `json:"operation"`
	Content   string `json:"content,omitempty"`
}

// Message holds a message's content. Content is either a plain string (user
// prompts) or an array of content blocks; both shapes occur in the wild, so
// it is kept raw and accessed through ContentString / ContentBlocks.
type Message struct {
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ContentString returns the content as a plain string, when it is one.
func (m Message) ContentString() (string, bool) {
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// ContentBlocks returns the content as a block array. A string or malformed
// content yields nil.
func (m Message) ContentBlocks() []ContentBlock {
	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// ContentBlock is one element of a message content array. The Type field
// selects which of the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// FlattenedContent renders a tool_result's content as text: strings pass
// through, block arrays join their text fields with newlines.
func (b ContentBlock) FlattenedContent() string {
	if len(b.Content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &parts); err != nil {
		return ""
	}

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// Decode parses one journal line. The first pass reads the discriminator and
// identity fields; the second parses the payload for projected record types.
func Decode(line []byte) (*Record, error) {
	var head struct {
		Type      string `json:"type"`
		UUID      string `json:"uuid,omitempty"`
		SessionID string `json:"sessionId,omitempty"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("parse record discriminator: %w", err)
	}

	rec := &Record{
		Type:      head.Type,
		UUID:      head.UUID,
		SessionID: head.SessionID,
	}

	switch head.Type {
	case TypeAssistant:
		var payload AssistantRecord
		if err := json.Unmarshal(line, &payload); err != nil {
			return nil, fmt.Errorf("parse assistant record: %w", err)
		}
		rec.Assistant = &payload

	case TypeUser:
		var payload UserRecord
		if err := json.Unmarshal(line, &payload); err != nil {
			return nil, fmt.Errorf("parse user record: %w", err)
		}
		rec.User = &payload

	case TypeSummary:
		var payload SummaryRecord
		if err := json.Unmarshal(line, &payload); err != nil {
			return nil, fmt.Errorf("parse summary record: %w", err)
		}
		rec.Summary = &payload

	case TypeQueueOp:
		var payload QueueOpRecord
		if err := json.Unmarshal(line, &payload); err != nil {
			return nil, fmt.Errorf("parse queue-operation record: %w", err)
		}
		rec.QueueOp = &payload
	}

	return rec, nil
}

// StringField reads a string out of a tool input object. Missing keys and
// non-string values (including explicit nulls) read as "".
func StringField(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}
