package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maslowhq/maslow/internal/store"
)

// GetSession returns the chat session, or (nil, nil) when none exists.
func (s *Store) GetSession(chatID string) (*store.ChatSession, error) {
	var cs store.ChatSession
	var lastActive int64
	err := s.db.QueryRow(`SELECT chat_id, model_session_id, working_directory,
		last_active_at, context_usage_percent FROM chat_sessions WHERE chat_id = ?`, chatID).
		Scan(&cs.ChatID, &cs.ModelSessionID, &cs.WorkingDirectory, &lastActive, &cs.ContextUsagePercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session %s: %w", chatID, err)
	}
	cs.LastActiveAt = time.UnixMilli(lastActive)
	return &cs, nil
}

// SaveSession upserts the session row.
func (s *Store) SaveSession(cs *store.ChatSession) error {
	last := cs.LastActiveAt
	if last.IsZero() {
		last = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO chat_sessions (chat_id, model_session_id, working_directory, last_active_at, context_usage_percent)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			model_session_id = excluded.model_session_id,
			working_directory = excluded.working_directory,
			last_active_at = excluded.last_active_at,
			context_usage_percent = excluded.context_usage_percent`,
		cs.ChatID, cs.ModelSessionID, cs.WorkingDirectory, last.UnixMilli(), cs.ContextUsagePercent)
	if err != nil {
		return fmt.Errorf("save chat session %s: %w", cs.ChatID, err)
	}
	return nil
}

func (s *Store) UpdateLastActive(chatID string) error {
	_, err := s.db.Exec(`UPDATE chat_sessions SET last_active_at = ? WHERE chat_id = ?`,
		time.Now().UnixMilli(), chatID)
	if err != nil {
		return fmt.Errorf("update last active for chat %s: %w", chatID, err)
	}
	return nil
}

func (s *Store) UpdateContextUsage(chatID string, pct float64) error {
	_, err := s.db.Exec(`UPDATE chat_sessions SET context_usage_percent = ?, last_active_at = ? WHERE chat_id = ?`,
		pct, time.Now().UnixMilli(), chatID)
	if err != nil {
		return fmt.Errorf("update context usage for chat %s: %w", chatID, err)
	}
	return nil
}

func (s *Store) DeleteSession(chatID string) error {
	_, err := s.db.Exec(`DELETE FROM chat_sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat session %s: %w", chatID, err)
	}
	return nil
}

// GetLastActiveChatID returns the most recently active chat, or "" when the
// table is empty.
func (s *Store) GetLastActiveChatID() (string, error) {
	var chatID string
	err := s.db.QueryRow(`SELECT chat_id FROM chat_sessions ORDER BY last_active_at DESC LIMIT 1`).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last active chat: %w", err)
	}
	return chatID, nil
}
