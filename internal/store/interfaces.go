package store

// Kanban is the card store contract the engine invokes. Implementations must
// be safe for concurrent use.
type Kanban interface {
	// GetBoard returns every card on the project's board.
	GetBoard(projectID string) ([]Card, error)
	// GetNext returns the most urgent backlog card, ordered by
	// (priority ASC, position ASC), or nil when the backlog is empty.
	GetNext(projectID string) (*Card, error)
	GetCard(cardID string) (*Card, error)
	CreateCard(projectID, title, description string, column Column) (*Card, error)
	UpdateCard(card *Card) error
	DeleteCard(cardID string) error
	MoveCard(cardID string, column Column) error
	// SkipToBack returns the card to the backlog behind its peers and clears
	// agent state so the workflow restarts from scratch.
	SkipToBack(cardID string) error
	// SaveContext persists a resumable snapshot and the model session that
	// produced it.
	SaveContext(cardID, snapshot, sessionID string) error
	// Resume returns the saved snapshot and session id for the card.
	Resume(cardID string) (snapshot, sessionID string, err error)
	AssignAgent(cardID string, agent AgentKind) error
	UpdateAgentStatus(cardID string, status AgentStatus, reason string) error
	// StartWork moves the card to in_progress and marks the agent running.
	StartWork(cardID string, agent AgentKind) error
	// CompleteWork moves the card to done and marks the agent completed.
	CompleteWork(cardID string) error
	// ListInProgress returns in_progress cards across all projects.
	ListInProgress() ([]Card, error)
	// ListReview returns review-column cards for the synthesizer sweep.
	ListReview() ([]Card, error)
}

// Projects is the project store contract.
type Projects interface {
	GetProjects() ([]Project, error)
	GetProject(id string) (*Project, error)
	CreateProject(name, description, repoPath string) (*Project, error)
}

// ChatSessions is the conversational session store contract.
type ChatSessions interface {
	GetSession(chatID string) (*ChatSession, error) // nil, nil when absent
	SaveSession(s *ChatSession) error
	UpdateLastActive(chatID string) error
	UpdateContextUsage(chatID string, pct float64) error
	DeleteSession(chatID string) error
	GetLastActiveChatID() (string, error)
}
