// Package toolmap maps journal tool invocations to tracker action
// descriptions. Each mapper is a pure function over the tool input and the
// (optional) flattened result text; tools without a table entry produce no
// mapping and the projector emits nothing for them.
package toolmap

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/colonyops/relay/internal/core/journal"
)

// Tool names as they appear in tool_use blocks.
const (
	ToolBash            = "Bash"
	ToolEdit            = "Edit"
	ToolWrite           = "Write"
	ToolRead            = "Read"
	ToolGlob            = "Glob"
	ToolGrep            = "Grep"
	ToolTask            = "Task"
	ToolWebFetch        = "WebFetch"
	ToolWebSearch       = "WebSearch"
	ToolTaskCreate      = "TaskCreate"
	ToolTaskUpdate      = "TaskUpdate"
	ToolTodoWrite       = "TodoWrite"
	ToolSkill           = "Skill"
	ToolAskUserQuestion = "AskUserQuestion"
	ToolNotebookEdit    = "NotebookEdit"
)

// Mapping describes one tool invocation for the tracker.
type Mapping struct {
	Action    string
	Parameter string
	Result    string
	HasResult bool
}

type mapper func(input map[string]any, result string, hasResult bool) Mapping

var (
	gitDiffRe = regexp.MustCompile(`^git\s+diff\b`)
	agentIDRe = regexp.MustCompile(`agentId:.*\n?`)
	usageRe   = regexp.MustCompile(`(?s)<usage>.*?</usage>`)
)

var table = map[string]mapper{
	ToolBash:            mapBash,
	ToolEdit:            mapEdit,
	ToolWrite:           simple("Created file", "file_path"),
	ToolRead:            simple("Read file", "file_path"),
	ToolGlob:            mapGlob,
	ToolGrep:            mapGrep,
	ToolTask:            mapTask,
	ToolWebFetch:        verbatim("Fetched URL", "url"),
	ToolWebSearch:       simple("Web search", "query"),
	ToolTaskCreate:      simple("Created task", "subject"),
	ToolTaskUpdate:      simple("Updated task", "taskId"),
	ToolSkill:           simple("Invoked skill", "skill"),
	ToolAskUserQuestion: mapAskUserQuestion,
	ToolNotebookEdit:    simple("Edited notebook", "notebook_path"),
}

// Map runs the mapper for a tool name. The second return is false for tools
// outside the table. Pass hasResult=false at tool_use time (no result yet)
// and true once the matching tool_result arrived.
func Map(tool string, input map[string]any, result string, hasResult bool) (Mapping, bool) {
	fn, ok := table[tool]
	if !ok {
		return Mapping{}, false
	}
	return fn(input, result, hasResult), true
}

// Known reports whether a tool has a table entry.
func Known(tool string) bool {
	_, ok := table[tool]
	return ok
}

// simple builds a mapper with a fixed action, a single input field as the
// parameter, and no result.
func simple(action, field string) mapper {
	return func(input map[string]any, _ string, _ bool) Mapping {
		return Mapping{Action: action, Parameter: journal.StringField(input, field)}
	}
}

// verbatim is simple plus the raw result text when present.
func verbatim(action, field string) mapper {
	return func(input map[string]any, result string, hasResult bool) Mapping {
		m := Mapping{Action: action, Parameter: journal.StringField(input, field)}
		if hasResult {
			m.Result = result
			m.HasResult = true
		}
		return m
	}
}

func mapBash(input map[string]any, result string, hasResult bool) Mapping {
	command := journal.StringField(input, "command")
	m := Mapping{Action: "Ran command", Parameter: command}
	if !hasResult {
		return m
	}

	m.HasResult = true
	switch {
	case gitDiffRe.MatchString(command):
		m.Result = fence("diff", result)
	case isJSON(result):
		m.Result = fence("json", result)
	default:
		m.Result = result
	}
	return m
}

func mapEdit(input map[string]any, _ string, hasResult bool) Mapping {
	m := Mapping{Action: "Edited file", Parameter: journal.StringField(input, "file_path")}
	if !hasResult {
		return m
	}

	oldStr := journal.StringField(input, "old_string")
	newStr := journal.StringField(input, "new_string")
	if oldStr == "" && newStr == "" {
		return m
	}

	var lines []string
	for _, l := range splitNonEmpty(oldStr) {
		lines = append(lines, "- "+l)
	}
	for _, l := range splitNonEmpty(newStr) {
		lines = append(lines, "+ "+l)
	}

	m.Result = fence("diff", strings.Join(lines, "\n"))
	m.HasResult = true
	return m
}

func mapGlob(input map[string]any, result string, hasResult bool) Mapping {
	param := journal.StringField(input, "pattern")
	if path := journal.StringField(input, "path"); path != "" {
		param += " in " + path
	}

	m := Mapping{Action: "Searched files", Parameter: param}
	if hasResult {
		m.Result = result
		m.HasResult = true
	}
	return m
}

func mapGrep(input map[string]any, result string, hasResult bool) Mapping {
	param := journal.StringField(input, "pattern")
	if path := journal.StringField(input, "path"); path != "" {
		param += " in " + path
	}
	if glob := journal.StringField(input, "glob"); glob != "" {
		param += " (" + glob + ")"
	}

	m := Mapping{Action: "Searched for pattern", Parameter: param}
	if hasResult {
		m.Result = result
		m.HasResult = true
	}
	return m
}

func mapTask(input map[string]any, result string, hasResult bool) Mapping {
	m := Mapping{Action: "Delegated subtask", Parameter: journal.StringField(input, "description")}
	if !hasResult {
		return m
	}

	cleaned := agentIDRe.ReplaceAllString(result, "")
	cleaned = usageRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != "" {
		m.Result = cleaned
		m.HasResult = true
	}
	return m
}

func mapAskUserQuestion(input map[string]any, _ string, _ bool) Mapping {
	m := Mapping{Action: "Asked user"}

	questions, _ := input["questions"].([]any)
	if len(questions) > 0 {
		if first, ok := questions[0].(map[string]any); ok {
			m.Parameter = journal.StringField(first, "question")
		}
	}
	return m
}

func fence(lang, body string) string {
	return "```" + lang + "\n" + body + "\n```"
}

func isJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed != "" && json.Valid([]byte(trimmed))
}

// splitNonEmpty splits s into lines, dropping a trailing empty element so a
// newline-terminated string does not grow a blank diff line.
func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
