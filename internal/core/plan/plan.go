// Package plan maintains the mirrored task list for a session: an
// insertion-ordered mapping of task id to content and status, reduced from
// TaskCreate, TaskUpdate, and TodoWrite tool results observed mid-stream.
package plan

import (
	"regexp"
	"strconv"

	"github.com/colonyops/relay/internal/core/journal"
)

// Task statuses as the agent reports them.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDeleted    = "deleted"
)

// statusExport translates journal statuses to the tracker's vocabulary.
// Unknown statuses export as pending.
var statusExport = map[string]string{
	StatusPending:    "pending",
	StatusInProgress: "inProgress",
	StatusCompleted:  "completed",
	StatusDeleted:    "canceled",
}

var taskIDRe = regexp.MustCompile(`Task #(\d+)`)

// Task is one plan entry.
type Task struct {
	Content string
	Status  string
}

// Item is one entry of a flattened plan snapshot, with the status already
// translated for export.
type Item struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Reducer folds task tool results into the current plan. Insertion order is
// the presentation order; updates modify entries in place and never re-insert.
type Reducer struct {
	order []string
	tasks map[string]Task
}

// NewReducer returns an empty plan.
func NewReducer() *Reducer {
	return &Reducer{tasks: make(map[string]Task)}
}

// HandleTaskCreate records a newly created task. The task id is parsed out of
// the result text ("Task #N ..."); results without an id are ignored.
func (r *Reducer) HandleTaskCreate(input map[string]any, resultText string) {
	m := taskIDRe.FindStringSubmatch(resultText)
	if m == nil {
		return
	}

	r.insert(m[1], Task{
		Content: journal.StringField(input, "subject"),
		Status:  StatusPending,
	})
}

// HandleTaskUpdate applies a status or subject change. Updates for unknown
// task ids are ignored; status "deleted" removes the entry.
func (r *Reducer) HandleTaskUpdate(input map[string]any) {
	id := journal.StringField(input, "taskId")
	task, ok := r.tasks[id]
	if !ok {
		return
	}

	status := journal.StringField(input, "status")
	if status == StatusDeleted {
		r.remove(id)
		return
	}

	if status != "" {
		task.Status = status
	}
	if subject := journal.StringField(input, "subject"); subject != "" {
		task.Content = subject
	}
	r.tasks[id] = task
}

// HandleTodoWrite replaces the whole plan with the provided todo list, keyed
// by array index. An absent or empty list clears the plan.
func (r *Reducer) HandleTodoWrite(input map[string]any) {
	r.order = nil
	r.tasks = make(map[string]Task)

	todos, _ := input["todos"].([]any)
	for i, raw := range todos {
		todo, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		status := journal.StringField(todo, "status")
		if status == "" {
			status = StatusPending
		}

		r.insert(strconv.Itoa(i), Task{
			Content: journal.StringField(todo, "content"),
			Status:  status,
		})
	}
}

// HasPlan reports whether any task is currently tracked.
func (r *Reducer) HasPlan() bool {
	return len(r.order) > 0
}

// Snapshot flattens the plan in insertion order with statuses translated for
// the tracker.
func (r *Reducer) Snapshot() []Item {
	items := make([]Item, 0, len(r.order))
	for _, id := range r.order {
		task := r.tasks[id]

		status, ok := statusExport[task.Status]
		if !ok {
			status = "pending"
		}

		items = append(items, Item{Content: task.Content, Status: status})
	}
	return items
}

func (r *Reducer) insert(id string, task Task) {
	if _, exists := r.tasks[id]; !exists {
		r.order = append(r.order, id)
	}
	r.tasks[id] = task
}

func (r *Reducer) remove(id string) {
	delete(r.tasks, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
