package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/maslowhq/maslow/internal/store"
)

const (
	actionOpen  = ":::action"
	actionClose = ":::"
)

// ActionExecutor applies workspace actions embedded in model replies.
// Malformed blocks, unknown types, missing fields and individual failures
// are all skipped; a bad action never aborts the rest of the reply.
type ActionExecutor struct {
	kanban   store.Kanban
	projects store.Projects
	thinking Thinking
}

func NewActionExecutor(kanban store.Kanban, projects store.Projects, thinking Thinking) *ActionExecutor {
	return &ActionExecutor{kanban: kanban, projects: projects, thinking: thinking}
}

// Execute parses and applies every action block in the reply, returning how
// many were applied.
func (e *ActionExecutor) Execute(ctx context.Context, reply string) int {
	blocks := extractActionBlocks(reply)
	if len(blocks) == 0 {
		return 0
	}

	project := e.currentProject()
	applied := 0
	for _, body := range blocks {
		if e.apply(body, project) {
			applied++
		}
	}
	return applied
}

// extractActionBlocks returns the bodies between ":::action" and ":::"
// delimiter lines. An unterminated block is dropped.
func extractActionBlocks(text string) []string {
	var blocks []string
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != actionOpen {
			continue
		}
		var body []string
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == actionClose {
				blocks = append(blocks, strings.Join(body, "\n"))
				i = j
				break
			}
			body = append(body, lines[j])
		}
	}
	return blocks
}

func (e *ActionExecutor) apply(body string, project *store.Project) bool {
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return false
	}
	typ, ok := raw["type"].(string)
	if !ok {
		return false
	}
	field := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	switch typ {
	case "create_card":
		title := field("title")
		if title == "" || project == nil {
			return false
		}
		column := store.Column(field("column"))
		switch column {
		case store.ColumnBacklog, store.ColumnInProgress, store.ColumnReview, store.ColumnDone:
		default:
			column = store.ColumnBacklog
		}
		if _, err := e.kanban.CreateCard(project.ID, title, field("description"), column); err != nil {
			slog.Debug("create_card action failed", "title", title, "error", err)
			return false
		}
		return true

	case "move_card":
		title, column := field("title"), store.Column(field("column"))
		if title == "" || column == "" || project == nil {
			return false
		}
		board, err := e.kanban.GetBoard(project.ID)
		if err != nil {
			return false
		}
		for i := range board {
			if board[i].Title == title {
				return e.kanban.MoveCard(board[i].ID, column) == nil
			}
		}
		return false

	case "log_decision":
		title := field("title")
		if title == "" {
			return false
		}
		return e.thinking.LogDecision(title, field("detail")) == nil

	case "add_assumption":
		assumption := field("assumption")
		if assumption == "" {
			return false
		}
		return e.thinking.AddAssumption(assumption) == nil

	case "update_state":
		summary := field("summary")
		if summary == "" {
			return false
		}
		return e.thinking.UpdateStateSummary(summary) == nil
	}
	return false
}

// currentProject is the first active project; card actions target its board.
func (e *ActionExecutor) currentProject() *store.Project {
	projects, err := e.projects.GetProjects()
	if err != nil {
		return nil
	}
	for i := range projects {
		if projects[i].Status == store.ProjectActive {
			return &projects[i]
		}
	}
	return nil
}
