package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/relay/internal/core/journal"
	"github.com/colonyops/relay/internal/core/ratelimit"
	"github.com/colonyops/relay/internal/tracker"
)

// fakeTracker records every write. Safe for use from the watcher goroutine.
type fakeTracker struct {
	mu             sync.Mutex
	activities     []tracker.Activity
	plans          [][]tracker.PlanItem
	failActivities bool
}

func (f *fakeTracker) CreateActivity(_ context.Context, activity tracker.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActivities {
		return errors.New("tracker unavailable")
	}
	f.activities = append(f.activities, activity)
	return nil
}

func (f *fakeTracker) UpdateSessionPlan(_ context.Context, _ string, items []tracker.PlanItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, items)
	return nil
}

func (f *fakeTracker) Activities() []tracker.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tracker.Activity, len(f.activities))
	copy(out, f.activities)
	return out
}

func (f *fakeTracker) Plans() [][]tracker.PlanItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]tracker.PlanItem, len(f.plans))
	copy(out, f.plans)
	return out
}

func newTestEmitter(t *testing.T) (*Emitter, *fakeTracker) {
	t.Helper()

	client := &fakeTracker{}
	limiter := ratelimit.New(1_000_000, 1_000_000)
	return NewEmitter("sess-1", client, limiter, nil, zerolog.Nop()), client
}

func mustDecode(t *testing.T, line string) *journal.Record {
	t.Helper()
	rec, err := journal.Decode([]byte(line))
	require.NoError(t, err)
	return rec
}

func TestEmitter_Thinking(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"pondering"}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, tracker.ContentThought, acts[0].Content.Type)
	assert.Equal(t, "pondering", acts[0].Content.Body)
	assert.True(t, acts[0].Ephemeral)
	assert.Equal(t, "sess-1", acts[0].AgentSessionID)
}

func TestEmitter_ResponseTextTrimmed(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"  done  "}]}}`))
	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"   "}]}}`))
	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","message":{"content":[]}}`))

	acts := client.Activities()
	require.Len(t, acts, 1, "blank text and empty content must be skipped")
	assert.Equal(t, tracker.ContentResponse, acts[0].Content.Type)
	assert.Equal(t, "done", acts[0].Content.Body)
	assert.False(t, acts[0].Ephemeral)
}

func TestEmitter_ToolPairCorrelation(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"u1","name":"Read","input":{"file_path":"/f.ts"}}]}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"u1","content":"file contents"}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 2)

	assert.Equal(t, tracker.ContentAction, acts[0].Content.Type)
	assert.Equal(t, "Read file", acts[0].Content.Action)
	assert.Equal(t, "/f.ts", acts[0].Content.Parameter)
	assert.True(t, acts[0].Ephemeral)

	assert.Equal(t, tracker.ContentAction, acts[1].Content.Type)
	assert.Equal(t, "Read file", acts[1].Content.Action)
	assert.Equal(t, "/f.ts", acts[1].Content.Parameter)
	assert.False(t, acts[1].Ephemeral)
}

func TestEmitter_ErrorResult(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"u1","name":"Bash","input":{"command":"rm -rf /"}}]}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"u1","content":"Permission denied","is_error":true}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 2)
	assert.True(t, acts[0].Ephemeral)

	assert.Equal(t, tracker.ContentError, acts[1].Content.Type)
	assert.Equal(t, "**Bash** `rm -rf /` failed:\nPermission denied", acts[1].Content.Body)

	assert.Empty(t, client.Plans(), "error results must not update the plan")
}

func TestEmitter_ToolUseErrorMarker(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"u2","name":"Read","input":{"file_path":"/gone"}}]}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"u2","content":"<tool_use_error>no such file</tool_use_error>"}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 2)
	assert.Equal(t, tracker.ContentError, acts[1].Content.Type)
	assert.Equal(t, "**Read** `/gone` failed", acts[1].Content.Body)
}

func TestEmitter_OrphanToolResultDropped(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"never-registered","content":"x"}]}}`))

	assert.Empty(t, client.Activities())
}

func TestEmitter_UnknownToolRegisteredButSilent(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"u3","name":"mcp__custom__thing","input":{}}]}}`))
	assert.Empty(t, client.Activities(), "unknown tools emit nothing at tool_use time")

	// The success result of an unknown tool also emits nothing.
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"u3","content":"whatever"}]}}`))
	assert.Empty(t, client.Activities())

	// But its error result still reports a failure.
	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"u4","name":"mcp__custom__thing","input":{}}]}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a1","message":{"content":[{"type":"tool_result","tool_use_id":"u4","content":"boom","is_error":true}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, tracker.ContentError, acts[0].Content.Type)
	assert.Equal(t, "**mcp__custom__thing** failed:\nboom", acts[0].Content.Body)
}

func TestEmitter_APIErrorMessage(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","isApiErrorMessage":true,"message":{"content":[{"type":"text","text":"overloaded"},{"type":"text","text":"retry later"}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, tracker.ContentError, acts[0].Content.Type)
	assert.Equal(t, "overloaded retry later", acts[0].Content.Body)
}

func TestEmitter_APIErrorWithoutTextSkipped(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t,
		`{"type":"assistant","isApiErrorMessage":true,"message":{"content":[]}}`))

	assert.Empty(t, client.Activities())
}

func TestEmitter_Summary(t *testing.T) {
	e, client := newTestEmitter(t)

	e.Process(context.Background(), mustDecode(t, `{"type":"summary","summary":"hello","leafUuid":"x"}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, tracker.ContentThought, acts[0].Content.Type)
	assert.Equal(t, "Context: hello", acts[0].Content.Body)
}

func TestEmitter_ExternalPrompt(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"user","message":{"content":"prefix <prompt>ship it</prompt> suffix"}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","message":{"content":"no wrapper here"}}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, tracker.ContentResponse, acts[0].Content.Type)
	assert.Equal(t, "> **External prompt:** ship it", acts[0].Content.Body)
}

func TestEmitter_QueueOperation(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		wantType tracker.ContentType
		wantBody string
		skip     bool
	}{
		{
			name:     "enqueue emits action",
			line:     `{"type":"queue-operation","operation":"enqueue","content":"<summary>job queued</summary><status>ok</status>"}`,
			wantType: tracker.ContentAction,
			wantBody: "job queued",
		},
		{
			name:     "failed status emits error",
			line:     `{"type":"queue-operation","operation":"enqueue","content":"<summary>job died</summary><status>failed</status>"}`,
			wantType: tracker.ContentError,
			wantBody: "job died",
		},
		{
			name: "missing summary skipped",
			line: `{"type":"queue-operation","operation":"enqueue","content":"<status>ok</status>"}`,
			skip: true,
		},
		{
			name: "non-enqueue skipped",
			line: `{"type":"queue-operation","operation":"dequeue","content":"<summary>x</summary>"}`,
			skip: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, client := newTestEmitter(t)
			e.Process(context.Background(), mustDecode(t, tc.line))

			acts := client.Activities()
			if tc.skip {
				assert.Empty(t, acts)
				return
			}
			require.Len(t, acts, 1)
			assert.Equal(t, tc.wantType, acts[0].Content.Type)
			assert.Equal(t, tc.wantBody, acts[0].Content.Body)
		})
	}
}

func TestEmitter_PlanLifecycle(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	step := func(id, name, input, result string) {
		e.Process(ctx, mustDecode(t,
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"`+id+`","name":"`+name+`","input":`+input+`}]}}`))
		e.Process(ctx, mustDecode(t,
			`{"type":"user","sourceToolAssistantUUID":"a","message":{"content":[{"type":"tool_result","tool_use_id":"`+id+`","content":"`+result+`"}]}}`))
	}

	step("c1", "TaskCreate", `{"subject":"A"}`, "Task #1 ok")
	step("c2", "TaskCreate", `{"subject":"B"}`, "Task #2 ok")
	step("u1", "TaskUpdate", `{"taskId":"1","status":"completed"}`, "ok")
	step("u2", "TaskUpdate", `{"taskId":"2","status":"deleted"}`, "ok")

	plans := client.Plans()
	require.Len(t, plans, 4, "every non-error plan tool result pushes a snapshot")

	final := plans[len(plans)-1]
	require.Len(t, final, 1)
	assert.Equal(t, tracker.PlanItem{Content: "A", Status: "completed"}, final[0])
}

func TestEmitter_EmptyPlanNotPushed(t *testing.T) {
	e, client := newTestEmitter(t)
	ctx := context.Background()

	// TaskCreate whose result has no task id leaves the plan empty; no plan
	// write may happen.
	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"TaskCreate","input":{"subject":"A"}}]}}`))
	e.Process(ctx, mustDecode(t,
		`{"type":"user","sourceToolAssistantUUID":"a","message":{"content":[{"type":"tool_result","tool_use_id":"c1","content":"created"}]}}`))

	assert.Empty(t, client.Plans())
}

func TestEmitter_WriteFailureDoesNotStopPipeline(t *testing.T) {
	client := &fakeTracker{failActivities: true}
	limiter := ratelimit.New(1_000_000, 1_000_000)
	e := NewEmitter("sess-1", client, limiter, nil, zerolog.Nop())
	ctx := context.Background()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"one"}]}}`))

	client.mu.Lock()
	client.failActivities = false
	client.mu.Unlock()

	e.Process(ctx, mustDecode(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"two"}]}}`))

	acts := client.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, "two", acts[0].Content.Body)
}
