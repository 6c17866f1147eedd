package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maslowhq/maslow/internal/store"
)

const projectColumns = `id, name, description, status, repo_path,
	agent_timeout_minutes, max_concurrent_agents, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*store.Project, error) {
	var p store.Project
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.RepoPath,
		&p.AgentTimeoutMinutes, &p.MaxConcurrentAgents, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// GetProjects returns all projects in creation order.
func (s *Store) GetProjects() ([]store.Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) GetProject(id string) (*store.Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) CreateProject(name, description, repoPath string) (*store.Project, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO projects (id, name, description, status, repo_path, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?, ?)`,
		id, name, description, repoPath, now, now)
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	return s.GetProject(id)
}
