package session

import (
	"context"
	"log/slog"

	"github.com/maslowhq/maslow/internal/store"
)

// HandleContinuation performs the operator-requested handoff: summarize the
// old session, drop it, and start a fresh exchange seeded with the summary.
func (m *Manager) HandleContinuation(ctx context.Context, chatID string) {
	st := m.state(chatID)
	st.mu.Lock()
	defer st.mu.Unlock()
	m.continueLocked(ctx, st, chatID)
}

func (m *Manager) continueLocked(ctx context.Context, st *chatState, chatID string) {
	sess, err := m.sessions.GetSession(chatID)
	if err != nil {
		slog.Warn("failed to load chat session", "chat_id", chatID, "error", err)
	}
	if sess == nil || sess.ModelSessionID == "" {
		m.reply(ctx, chatID, "No active session")
		return
	}
	cwd := sess.WorkingDirectory
	if cwd == "" {
		cwd = m.workdir
	}

	m.reply(ctx, chatID, "Generating handoff summary…")
	summary, err := m.model.GenerateHandoff(ctx, sess.ModelSessionID, cwd)
	if err != nil {
		m.reply(ctx, chatID, "Handoff failed: "+err.Error())
		return
	}

	if err := m.sessions.DeleteSession(chatID); err != nil {
		slog.Warn("failed to delete old chat session", "chat_id", chatID, "error", err)
	}
	m.reply(ctx, chatID, formatHandoff(summary))

	// The fresh exchange starts with the handoff as its opening context.
	m.converseLocked(ctx, st, chatID, "Previous session handoff: "+summary, false, nil)
}

// autoHandoff runs the same protocol without a user prompt; the summary
// seeds the next exchange instead of starting one now.
func (m *Manager) autoHandoff(ctx context.Context, st *chatState, chatID string, sess *store.ChatSession, cwd string) {
	m.reply(ctx, chatID, "Auto-handoff: the context window is filling up, moving to a fresh session.")

	summary, err := m.model.GenerateHandoff(ctx, sess.ModelSessionID, cwd)
	if err != nil {
		m.reply(ctx, chatID, "Handoff failed: "+err.Error())
		return
	}

	if err := m.sessions.DeleteSession(chatID); err != nil {
		slog.Warn("failed to delete old chat session", "chat_id", chatID, "error", err)
	}
	m.reply(ctx, chatID, formatHandoff(summary))

	fresh := &store.ChatSession{ChatID: chatID, WorkingDirectory: cwd, ContextUsagePercent: 0}
	if err := m.sessions.SaveSession(fresh); err != nil {
		slog.Warn("failed to save fresh chat session", "chat_id", chatID, "error", err)
	}
	*sess = *fresh
	st.pendingHandoff = summary
	st.pendingContinuation = false
}

func formatHandoff(summary string) string {
	return "📋 Handoff summary\n\n" + summary
}
