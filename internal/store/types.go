// Package store defines the engine's domain records and the capability
// contracts it consumes for persistence. The default implementation lives
// in store/sqlite; the engine depends only on the interfaces here.
package store

import "time"

// ProjectStatus gates heartbeat scanning: only active projects get agents.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectArchived ProjectStatus = "archived"
)

// Project is one kanban board plus its agent policy overrides.
type Project struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	Status              ProjectStatus `json:"status"`
	RepoPath            string        `json:"repoPath,omitempty"`
	AgentTimeoutMinutes int           `json:"agentTimeoutMinutes,omitempty"` // 0 = engine default
	MaxConcurrentAgents int           `json:"maxConcurrentAgents,omitempty"` // 0 = engine default; only lowers the cap
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Column is a kanban column. Ordering within a column is by
// (priority ASC, position ASC); smaller means more urgent.
type Column string

const (
	ColumnBacklog    Column = "backlog"
	ColumnInProgress Column = "in_progress"
	ColumnReview     Column = "review"
	ColumnDone       Column = "done"
)

// AgentStatus tracks the card's relationship to its background agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentBlocked   AgentStatus = "blocked"
	AgentCompleted AgentStatus = "completed"
)

// AgentKind names one of the supported external coding agents.
type AgentKind string

const (
	AgentClaude AgentKind = "claude"
	AgentCodex  AgentKind = "codex"
	AgentGemini AgentKind = "gemini"
	AgentOllama AgentKind = "ollama"
)

// DefaultAgent is used when a card has no explicit assignment.
const DefaultAgent = AgentClaude

// Card is one unit of work on a project board.
type Card struct {
	ID              string      `json:"id"`
	ProjectID       string      `json:"projectId"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Column          Column      `json:"column"`
	Position        int         `json:"position"`
	Priority        int         `json:"priority"`
	ContextSnapshot string      `json:"contextSnapshot,omitempty"`
	LastSessionID   string      `json:"lastSessionId,omitempty"`
	AssignedAgent   AgentKind   `json:"assignedAgent,omitempty"`
	AgentStatus     AgentStatus `json:"agentStatus,omitempty"`
	BlockedReason   string      `json:"blockedReason,omitempty"`
	BranchName      string      `json:"branchName,omitempty"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Agent returns the card's agent, defaulting when unassigned.
func (c *Card) Agent() AgentKind {
	if c.AssignedAgent == "" {
		return DefaultAgent
	}
	return c.AssignedAgent
}

// ChatSession is the conversational state for one chat.
type ChatSession struct {
	ChatID string `json:"chatId"`
	// ModelSessionID is the conversational model's resume handle.
	// Empty means no active model session.
	ModelSessionID      string    `json:"modelSessionId"`
	WorkingDirectory    string    `json:"workingDirectory"`
	LastActiveAt        time.Time `json:"lastActiveAt"`
	ContextUsagePercent float64   `json:"contextUsagePercent"`
}
