package heartbeat

import (
	"context"
	"fmt"
	"strings"

	"github.com/maslowhq/maslow/internal/bus"
	"github.com/maslowhq/maslow/internal/store"
)

const (
	maxTitleLen      = 80
	truncatedTitleAt = 77
)

// BriefOpts steers SubmitTaskBrief. The zero value targets the resolved
// project and ticks immediately.
type BriefOpts struct {
	// ProjectID pins the brief to a project instead of resolving one.
	ProjectID string
	// Deferred skips the immediate tick; the card waits for the schedule.
	Deferred bool
}

// SubmitTaskBrief turns free text into a backlog card and, unless deferred,
// runs a tick so an idle slot picks it up right away.
func (h *Heartbeat) SubmitTaskBrief(ctx context.Context, text string, opts BriefOpts) (*store.Card, error) {
	project, err := h.resolveProject(text, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	title := DeriveTitle(text)
	card, err := h.kanban.CreateCard(project.ID, title, text, store.ColumnBacklog)
	if err != nil {
		return nil, fmt.Errorf("create card for brief: %w", err)
	}

	h.sink.Emit(bus.Event{Type: bus.EventHeartbeatCardCreated, Payload: map[string]any{
		"source": "submitTaskBrief", "title": title, "cardId": card.ID, "projectId": project.ID,
	}})

	if !opts.Deferred {
		h.Tick(ctx)
	}
	return card, nil
}

// resolveProject picks the brief's target: explicit id, then the first
// active project whose name occurs in the text, then the first active one.
func (h *Heartbeat) resolveProject(text, explicitID string) (*store.Project, error) {
	if explicitID != "" {
		return h.projects.GetProject(explicitID)
	}

	projects, err := h.projects.GetProjects()
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var first *store.Project
	lower := strings.ToLower(text)
	for i := range projects {
		p := &projects[i]
		if p.Status != store.ProjectActive {
			continue
		}
		if first == nil {
			first = p
		}
		if p.Name != "" && strings.Contains(lower, strings.ToLower(p.Name)) {
			return p, nil
		}
	}
	if first == nil {
		return nil, store.ErrNoActiveProject
	}
	return first, nil
}

// DeriveTitle takes the text up to the first sentence terminator, trimmed,
// and truncates over-long results to 77 runes plus "...".
func DeriveTitle(text string) string {
	title := text
	if i := strings.IndexAny(text, ".?!\n"); i >= 0 {
		title = text[:i]
	}
	title = strings.TrimSpace(title)

	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:truncatedTitleAt])) + "..."
	}
	return title
}
