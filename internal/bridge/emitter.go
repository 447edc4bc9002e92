// Package bridge contains the tailing and projection engine: the file
// tailer, the record projector, session-file discovery, and the watcher that
// binds them. One watcher goroutine owns all of the engine's state; tracker
// writes are the only suspension points besides the poll sleeps.
package bridge

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/colonyops/relay/internal/core/journal"
	"github.com/colonyops/relay/internal/core/plan"
	"github.com/colonyops/relay/internal/core/ratelimit"
	"github.com/colonyops/relay/internal/core/toolmap"
	"github.com/colonyops/relay/internal/tracker"
)

var (
	promptRe       = regexp.MustCompile(`(?s)<prompt>(.*?)</prompt>`)
	queueSummaryRe = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	queueStatusRe  = regexp.MustCompile(`(?s)<status>(.*?)</status>`)
)

const toolUseErrorMarker = "<tool_use_error>"

// DeliveryRecorder observes every activity write attempt; plan updates are
// not recorded. Implementations must be cheap and must never fail the
// pipeline.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, activity tracker.Activity, ok bool, errMsg string)
}

type pendingTool struct {
	name  string
	input map[string]any
}

// Emitter projects journal records into tracker activities. It owns the
// pending tool-use registry and the plan reducer, and serializes every
// outbound write through the rate limiter. Tracker write failures are logged
// and do not stop record processing.
type Emitter struct {
	sessionID  string
	client     tracker.Client
	limiter    *ratelimit.Limiter
	plan       *plan.Reducer
	pending    map[string]pendingTool
	deliveries DeliveryRecorder // optional
	log        zerolog.Logger
}

// NewEmitter creates an emitter for one logical session. deliveries may be
// nil when no delivery log is wanted.
func NewEmitter(sessionID string, client tracker.Client, limiter *ratelimit.Limiter, deliveries DeliveryRecorder, log zerolog.Logger) *Emitter {
	return &Emitter{
		sessionID:  sessionID,
		client:     client,
		limiter:    limiter,
		plan:       plan.NewReducer(),
		pending:    make(map[string]pendingTool),
		deliveries: deliveries,
		log:        log.With().Str("component", "emitter").Logger(),
	}
}

// Process dispatches one journal record. Unknown record types are skipped
// silently; progress, file-history-snapshot, and system records decode with
// no payload and fall through the same way.
func (e *Emitter) Process(ctx context.Context, rec *journal.Record) {
	switch {
	case rec.Assistant != nil:
		e.processAssistant(ctx, rec.Assistant)
	case rec.User != nil:
		e.processUser(ctx, rec.User)
	case rec.Summary != nil:
		e.emit(ctx, tracker.Content{Type: tracker.ContentThought, Body: "Context: " + rec.Summary.Summary}, false)
	case rec.QueueOp != nil:
		e.processQueueOp(ctx, rec.QueueOp)
	}
}

func (e *Emitter) processAssistant(ctx context.Context, a *journal.AssistantRecord) {
	if a.IsAPIErrorMessage {
		var parts []string
		for _, b := range a.Message.ContentBlocks() {
			if b.Type == journal.BlockText {
				parts = append(parts, b.Text)
			}
		}
		if body := strings.Join(parts, " "); body != "" {
			e.emit(ctx, tracker.Content{Type: tracker.ContentError, Body: body}, false)
		}
		return
	}

	blocks := a.Message.ContentBlocks()
	if len(blocks) == 0 {
		return
	}

	block := blocks[0]
	switch block.Type {
	case journal.BlockThinking:
		e.emit(ctx, tracker.Content{Type: tracker.ContentThought, Body: block.Thinking}, true)

	case journal.BlockText:
		body := strings.TrimSpace(block.Text)
		if body == "" {
			return
		}
		e.emit(ctx, tracker.Content{Type: tracker.ContentResponse, Body: body}, false)

	case journal.BlockToolUse:
		// Register first: the tool result must correlate even when the tool
		// has no mapper and nothing is emitted now.
		e.pending[block.ID] = pendingTool{name: block.Name, input: block.Input}

		if m, ok := toolmap.Map(block.Name, block.Input, "", false); ok {
			e.emit(ctx, tracker.Content{
				Type:      tracker.ContentAction,
				Action:    m.Action,
				Parameter: m.Parameter,
			}, true)
		}
	}
}

func (e *Emitter) processUser(ctx context.Context, u *journal.UserRecord) {
	if u.SourceToolAssistantUUID == "" {
		// A real user prompt. Only string content carries the external
		// prompt wrapper.
		s, ok := u.Message.ContentString()
		if !ok {
			return
		}

		m := promptRe.FindStringSubmatch(s)
		if m == nil || m[1] == "" {
			return
		}
		e.emit(ctx, tracker.Content{Type: tracker.ContentResponse, Body: "> **External prompt:** " + m[1]}, false)
		return
	}

	// Synthetic carrier for tool results.
	for _, block := range u.Message.ContentBlocks() {
		if block.Type == journal.BlockToolResult {
			e.handleToolResult(ctx, block)
		}
	}
}

func (e *Emitter) processQueueOp(ctx context.Context, q *journal.QueueOpRecord) {
	if q.Operation != "enqueue" || q.Content == "" {
		return
	}

	summary := queueSummaryRe.FindStringSubmatch(q.Content)
	if summary == nil {
		return
	}

	contentType := tracker.ContentAction
	if status := queueStatusRe.FindStringSubmatch(q.Content); status != nil && status[1] == "failed" {
		contentType = tracker.ContentError
	}

	e.emit(ctx, tracker.Content{Type: contentType, Body: summary[1]}, false)
}

// handleToolResult finalizes a previously registered tool use. Results
// without a registered tool use are dropped; error results emit an error
// activity and skip both the plan reducer and the action emission.
func (e *Emitter) handleToolResult(ctx context.Context, block journal.ContentBlock) {
	tool, ok := e.pending[block.ToolUseID]
	if !ok {
		return
	}
	delete(e.pending, block.ToolUseID)

	text := block.FlattenedContent()

	label := "**" + tool.name + "**"
	if m, mapped := toolmap.Map(tool.name, tool.input, "", false); mapped && m.Parameter != "" {
		label += " `" + m.Parameter + "`"
	}

	if strings.Contains(text, toolUseErrorMarker) {
		e.emit(ctx, tracker.Content{Type: tracker.ContentError, Body: label + " failed"}, false)
		return
	}
	if block.IsError {
		e.emit(ctx, tracker.Content{Type: tracker.ContentError, Body: label + " failed:\n" + text}, false)
		return
	}

	switch tool.name {
	case toolmap.ToolTaskCreate:
		e.plan.HandleTaskCreate(tool.input, text)
	case toolmap.ToolTaskUpdate:
		e.plan.HandleTaskUpdate(tool.input)
	case toolmap.ToolTodoWrite:
		e.plan.HandleTodoWrite(tool.input)
	default:
		// Not a plan tool.
	}
	if isPlanTool(tool.name) && e.plan.HasPlan() {
		e.pushPlan(ctx)
	}

	if m, mapped := toolmap.Map(tool.name, tool.input, text, true); mapped {
		content := tracker.Content{
			Type:      tracker.ContentAction,
			Action:    m.Action,
			Parameter: m.Parameter,
		}
		if m.HasResult {
			content.Result = m.Result
		}
		e.emit(ctx, content, false)
	}
}

func isPlanTool(name string) bool {
	switch name {
	case toolmap.ToolTaskCreate, toolmap.ToolTaskUpdate, toolmap.ToolTodoWrite:
		return true
	}
	return false
}

// emit posts one activity through the rate limiter. A canceled context stops
// the write; any other failure is logged and swallowed so the cursor keeps
// advancing.
func (e *Emitter) emit(ctx context.Context, content tracker.Content, ephemeral bool) {
	activity := tracker.Activity{
		AgentSessionID: e.sessionID,
		Content:        content,
		Ephemeral:      ephemeral,
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		return
	}

	err := e.client.CreateActivity(ctx, activity)
	if err != nil {
		e.log.Warn().Err(err).Str("type", string(content.Type)).Msg("create activity failed")
	}

	if e.deliveries != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		e.deliveries.RecordDelivery(ctx, activity, err == nil, errMsg)
	}
}

// pushPlan mirrors the current plan snapshot onto the tracker.
func (e *Emitter) pushPlan(ctx context.Context) {
	snapshot := e.plan.Snapshot()
	items := make([]tracker.PlanItem, 0, len(snapshot))
	for _, item := range snapshot {
		items = append(items, tracker.PlanItem{Content: item.Content, Status: item.Status})
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		return
	}
	if err := e.client.UpdateSessionPlan(ctx, e.sessionID, items); err != nil {
		e.log.Warn().Err(err).Int("items", len(items)).Msg("update session plan failed")
	}
}
