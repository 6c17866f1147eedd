package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maslowhq/maslow/internal/store"
)

const cardColumns = `id, project_id, title, description, "column", position, priority,
	context_snapshot, last_session_id, assigned_agent, agent_status, blocked_reason,
	branch_name, started_at, completed_at, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (*store.Card, error) {
	var c store.Card
	var startedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Description, &c.Column,
		&c.Position, &c.Priority, &c.ContextSnapshot, &c.LastSessionID,
		&c.AssignedAgent, &c.AgentStatus, &c.BlockedReason, &c.BranchName,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64)
		c.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		c.CompletedAt = &t
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

func (s *Store) queryCards(query string, args ...any) ([]store.Card, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []store.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// GetBoard returns every card on the project's board in column order.
func (s *Store) GetBoard(projectID string) ([]store.Card, error) {
	return s.queryCards(`SELECT `+cardColumns+` FROM cards
		WHERE project_id = ? ORDER BY "column", priority ASC, position ASC`, projectID)
}

// GetNext returns the most urgent backlog card, or nil when the backlog is
// empty.
func (s *Store) GetNext(projectID string) (*store.Card, error) {
	row := s.db.QueryRow(`SELECT `+cardColumns+` FROM cards
		WHERE project_id = ? AND "column" = 'backlog'
		ORDER BY priority ASC, position ASC LIMIT 1`, projectID)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get next card for project %s: %w", projectID, err)
	}
	return c, nil
}

func (s *Store) GetCard(cardID string) (*store.Card, error) {
	row := s.db.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, cardID)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.ErrCardNotFound{CardID: cardID}
	}
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", cardID, err)
	}
	return c, nil
}

func (s *Store) CreateCard(projectID, title, description string, column store.Column) (*store.Card, error) {
	if column == "" {
		column = store.ColumnBacklog
	}
	now := time.Now().UnixMilli()
	id := uuid.NewString()

	_, err := s.db.Exec(`INSERT INTO cards (id, project_id, title, description, "column", position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM cards WHERE project_id = ? AND "column" = ?),
			?, ?)`,
		id, projectID, title, description, column, projectID, column, now, now)
	if err != nil {
		return nil, fmt.Errorf("create card %q: %w", title, err)
	}
	return s.GetCard(id)
}

func (s *Store) UpdateCard(c *store.Card) error {
	res, err := s.db.Exec(`UPDATE cards SET title = ?, description = ?, "column" = ?,
		position = ?, priority = ?, assigned_agent = ?, agent_status = ?,
		blocked_reason = ?, branch_name = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.Description, c.Column, c.Position, c.Priority,
		c.AssignedAgent, c.AgentStatus, c.BlockedReason, c.BranchName,
		time.Now().UnixMilli(), c.ID)
	if err != nil {
		return fmt.Errorf("update card %s: %w", c.ID, err)
	}
	return s.requireRow(res, c.ID)
}

func (s *Store) DeleteCard(cardID string) error {
	res, err := s.db.Exec(`DELETE FROM cards WHERE id = ?`, cardID)
	if err != nil {
		return fmt.Errorf("delete card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) MoveCard(cardID string, column store.Column) error {
	res, err := s.db.Exec(`UPDATE cards SET "column" = ?,
		position = (SELECT COALESCE(MAX(position), 0) + 1 FROM cards c2
			WHERE c2.project_id = cards.project_id AND c2."column" = ?),
		updated_at = ? WHERE id = ?`,
		column, column, time.Now().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("move card %s to %s: %w", cardID, column, err)
	}
	return s.requireRow(res, cardID)
}

// SkipToBack returns the card to the end of the backlog and clears agent
// state so the workflow restarts from scratch. Snapshot and branch survive
// so a later run can resume.
func (s *Store) SkipToBack(cardID string) error {
	res, err := s.db.Exec(`UPDATE cards SET "column" = 'backlog',
		position = (SELECT COALESCE(MAX(position), 0) + 1 FROM cards c2
			WHERE c2.project_id = cards.project_id AND c2."column" = 'backlog'),
		agent_status = 'idle', blocked_reason = '', started_at = NULL,
		updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("skip card %s to back: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) SaveContext(cardID, snapshot, sessionID string) error {
	res, err := s.db.Exec(`UPDATE cards SET context_snapshot = ?, last_session_id = ?,
		updated_at = ? WHERE id = ?`,
		snapshot, sessionID, time.Now().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("save context for card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) Resume(cardID string) (string, string, error) {
	var snapshot, sessionID string
	err := s.db.QueryRow(`SELECT context_snapshot, last_session_id FROM cards WHERE id = ?`, cardID).
		Scan(&snapshot, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", &store.ErrCardNotFound{CardID: cardID}
	}
	if err != nil {
		return "", "", fmt.Errorf("resume card %s: %w", cardID, err)
	}
	return snapshot, sessionID, nil
}

func (s *Store) AssignAgent(cardID string, agent store.AgentKind) error {
	res, err := s.db.Exec(`UPDATE cards SET assigned_agent = ?, updated_at = ? WHERE id = ?`,
		agent, time.Now().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("assign agent to card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) UpdateAgentStatus(cardID string, status store.AgentStatus, reason string) error {
	res, err := s.db.Exec(`UPDATE cards SET agent_status = ?, blocked_reason = ?, updated_at = ? WHERE id = ?`,
		status, reason, time.Now().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("update agent status for card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) StartWork(cardID string, agent store.AgentKind) error {
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`UPDATE cards SET "column" = 'in_progress', assigned_agent = ?,
		agent_status = 'running', blocked_reason = '', started_at = ?, updated_at = ? WHERE id = ?`,
		agent, now, now, cardID)
	if err != nil {
		return fmt.Errorf("start work on card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) CompleteWork(cardID string) error {
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`UPDATE cards SET "column" = 'done', agent_status = 'completed',
		blocked_reason = '', completed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, cardID)
	if err != nil {
		return fmt.Errorf("complete work on card %s: %w", cardID, err)
	}
	return s.requireRow(res, cardID)
}

func (s *Store) ListInProgress() ([]store.Card, error) {
	return s.queryCards(`SELECT ` + cardColumns + ` FROM cards
		WHERE "column" = 'in_progress' ORDER BY updated_at ASC`)
}

func (s *Store) ListReview() ([]store.Card, error) {
	return s.queryCards(`SELECT ` + cardColumns + ` FROM cards
		WHERE "column" = 'review' ORDER BY updated_at ASC`)
}

func (s *Store) requireRow(res sql.Result, cardID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &store.ErrCardNotFound{CardID: cardID}
	}
	return nil
}
