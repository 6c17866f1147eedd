// Package registry tracks live agent processes and enforces the per-card,
// per-project and global concurrency caps.
package registry

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/maslowhq/maslow/internal/store"
)

// DefaultMaxConcurrent is the global live-agent cap when the heartbeat
// document does not override it.
const DefaultMaxConcurrent = 3

// DefaultReservationTTL bounds the window between Reserve and Commit; a
// reservation not committed or released in time is auto-released.
const DefaultReservationTTL = 30 * time.Second

// Status of a live agent process record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AgentProcess is the in-memory supervisor record for one running external
// agent. It exists only while the agent is live.
type AgentProcess struct {
	CardID      string
	ProjectID   string
	Agent       store.AgentKind
	Status      Status
	StartedAt   time.Time
	WorktreeDir string
	BranchName  string
	SpanID      string
	Logs        *LogRing

	// Cmd is the external process handle; nil for library-mediated agents.
	Cmd *exec.Cmd
	// LogsDrained closes when the output pipe has been read to EOF. Wait on
	// it before Cmd.Wait so log lines are never truncated.
	LogsDrained chan struct{}
	// Cancel stops the supervisor task.
	Cancel context.CancelFunc
	// Done closes when the supervisor reaches a terminal state.
	Done chan struct{}
}

// ProcessInfo is a handle-free snapshot of an AgentProcess, safe to
// serialize for status surfaces.
type ProcessInfo struct {
	CardID      string    `json:"cardId"`
	ProjectID   string    `json:"projectId"`
	Agent       string    `json:"agent"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	WorktreeDir string    `json:"worktreeDir"`
	BranchName  string    `json:"branchName"`
	SpanID      string    `json:"spanId,omitempty"`
	LastLogs    []string  `json:"lastLogs,omitempty"`
}

// CapacityError is a typed reservation rejection.
type CapacityError struct {
	Scope     string // "card", "project" or "global"
	CardID    string
	ProjectID string
	Limit     int
}

func (e *CapacityError) Error() string {
	switch e.Scope {
	case "card":
		return fmt.Sprintf("card %s already has a live agent", e.CardID)
	case "project":
		return fmt.Sprintf("project %s already has a live agent", e.ProjectID)
	default:
		return fmt.Sprintf("global agent cap %d reached", e.Limit)
	}
}

// Reservation is a committed-or-released claim on a card and project slot.
type Reservation struct {
	CardID    string
	ProjectID string

	timer *time.Timer
	done  bool // guarded by the registry mutex
}

// Registry is the goroutine-safe set of live agents. Reserve+Commit form a
// two-phase acquisition so worktree setup and process spawn happen outside
// the lock without racing the caps check.
type Registry struct {
	mu           sync.Mutex
	capacity     int
	ttl          time.Duration
	entries      map[string]*AgentProcess // cardID → live agent
	byProject    map[string]string        // projectID → cardID
	reservations map[string]*Reservation  // cardID → pending reservation
	resByProject map[string]string        // projectID → cardID
}

func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxConcurrent
	}
	return &Registry{
		capacity:     capacity,
		ttl:          DefaultReservationTTL,
		entries:      make(map[string]*AgentProcess),
		byProject:    make(map[string]string),
		reservations: make(map[string]*Reservation),
		resByProject: make(map[string]string),
	}
}

// SetReservationTTL overrides the auto-release window (tests).
func (r *Registry) SetReservationTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
}

// SetCapacity applies a new global cap. Live agents above a lowered cap are
// not evicted; the cap gates new reservations only.
func (r *Registry) SetCapacity(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.capacity = n
	}
}

func (r *Registry) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// Reserve atomically claims a slot for (cardID, projectID). Reservations
// count toward all caps so concurrent reservers cannot overshoot.
func (r *Registry) Reserve(cardID, projectID string) (*Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.entries[cardID]; live {
		return nil, &CapacityError{Scope: "card", CardID: cardID}
	}
	if _, pending := r.reservations[cardID]; pending {
		return nil, &CapacityError{Scope: "card", CardID: cardID}
	}
	if _, live := r.byProject[projectID]; live {
		return nil, &CapacityError{Scope: "project", ProjectID: projectID}
	}
	if _, pending := r.resByProject[projectID]; pending {
		return nil, &CapacityError{Scope: "project", ProjectID: projectID}
	}
	if len(r.entries)+len(r.reservations) >= r.capacity {
		return nil, &CapacityError{Scope: "global", Limit: r.capacity}
	}

	res := &Reservation{CardID: cardID, ProjectID: projectID}
	res.timer = time.AfterFunc(r.ttl, func() { r.expire(res) })
	r.reservations[cardID] = res
	r.resByProject[projectID] = cardID
	return res, nil
}

// Commit converts a reservation into a live entry.
func (r *Registry) Commit(res *Reservation, proc *AgentProcess) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.done {
		return fmt.Errorf("reservation for card %s already released", res.CardID)
	}
	r.clearReservationLocked(res)
	r.entries[proc.CardID] = proc
	r.byProject[proc.ProjectID] = proc.CardID
	return nil
}

// ReleaseReservation abandons an uncommitted reservation. Idempotent.
func (r *Registry) ReleaseReservation(res *Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearReservationLocked(res)
}

func (r *Registry) expire(res *Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearReservationLocked(res)
}

func (r *Registry) clearReservationLocked(res *Reservation) {
	if res.done {
		return
	}
	res.done = true
	res.timer.Stop()
	delete(r.reservations, res.CardID)
	delete(r.resByProject, res.ProjectID)
}

// Release vacates the card's live entry. No-op when absent.
func (r *Registry) Release(cardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proc, ok := r.entries[cardID]
	if !ok {
		return
	}
	delete(r.entries, cardID)
	if r.byProject[proc.ProjectID] == cardID {
		delete(r.byProject, proc.ProjectID)
	}
}

// Get returns the live agent for the card, or nil.
func (r *Registry) Get(cardID string) *AgentProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[cardID]
}

// HasProject reports whether the project has a live or reserved agent.
func (r *Registry) HasProject(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, live := r.byProject[projectID]
	_, pending := r.resByProject[projectID]
	return live || pending
}

// CountRunning is the number of live entries (reservations excluded).
func (r *Registry) CountRunning() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ListRunning snapshots the live entries with process handles stripped.
func (r *Registry) ListRunning() []ProcessInfo {
	r.mu.Lock()
	procs := make([]*AgentProcess, 0, len(r.entries))
	for _, p := range r.entries {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		info := ProcessInfo{
			CardID:      p.CardID,
			ProjectID:   p.ProjectID,
			Agent:       string(p.Agent),
			Status:      string(p.Status),
			StartedAt:   p.StartedAt,
			WorktreeDir: p.WorktreeDir,
			BranchName:  p.BranchName,
			SpanID:      p.SpanID,
		}
		if p.Logs != nil {
			info.LastLogs = p.Logs.Tail(10)
		}
		infos = append(infos, info)
	}
	return infos
}

// Snapshot returns the live AgentProcess records themselves, for shutdown
// iteration. Callers must not mutate entries.
func (r *Registry) Snapshot() []*AgentProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	procs := make([]*AgentProcess, 0, len(r.entries))
	for _, p := range r.entries {
		procs = append(procs, p)
	}
	return procs
}
