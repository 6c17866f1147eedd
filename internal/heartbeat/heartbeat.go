// Package heartbeat is the periodic scheduler: it scans active projects,
// picks the next backlog card per project, spawns build agents within the
// concurrency caps, and reclaims stuck work.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maslowhq/maslow/internal/bus"
	"github.com/maslowhq/maslow/internal/clock"
	"github.com/maslowhq/maslow/internal/prompt"
	"github.com/maslowhq/maslow/internal/registry"
	"github.com/maslowhq/maslow/internal/runner"
	"github.com/maslowhq/maslow/internal/skills"
	"github.com/maslowhq/maslow/internal/steering"
	"github.com/maslowhq/maslow/internal/store"
	"github.com/maslowhq/maslow/internal/worktree"
)

// Spawner launches one agent for a reserved card. The production
// implementation is runner.Runner.
type Spawner interface {
	Spawn(ctx context.Context, req runner.Request, res *registry.Reservation) (*registry.AgentProcess, error)
}

// Synthesizer merges verified review work. The heartbeat only guarantees the
// mutex and the opt-in flag; verification detail lives behind this interface.
type Synthesizer interface {
	Sweep(ctx context.Context) (merged int, err error)
}

// Heartbeat drives the scheduling loop.
type Heartbeat struct {
	projects store.Projects
	kanban   store.Kanban
	registry *registry.Registry
	spawner  Spawner
	sink     bus.Sink
	clock    clock.Source

	assembler *prompt.Assembler
	steering  *steering.Service
	skills    *skills.Loader
	synth     Synthesizer

	workspace string

	consMu sync.RWMutex
	cons   Constraints

	// tickMu and synthMu use try-acquire only; an overlapping call returns
	// immediately instead of queueing.
	tickMu  sync.Mutex
	synthMu sync.Mutex

	// composePrompt maps a card to its agent prompt and resume session id.
	// Swappable in tests.
	composePrompt func(card *store.Card, project *store.Project) (string, string)

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

func New(projects store.Projects, kanban store.Kanban, reg *registry.Registry, spawner Spawner, sink bus.Sink, clk clock.Source, workspace string) *Heartbeat {
	h := &Heartbeat{
		projects:  projects,
		kanban:    kanban,
		registry:  reg,
		spawner:   spawner,
		sink:      sink,
		clock:     clk,
		assembler: prompt.NewAssembler(),
		steering:  steering.New(workspace),
		skills:    skills.NewLoader(workspace),
		workspace: workspace,
		cons:      DefaultConstraints(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	h.composePrompt = h.defaultComposePrompt
	return h
}

// SetSynthesizer installs the review-sweep collaborator.
func (h *Heartbeat) SetSynthesizer(s Synthesizer) { h.synth = s }

// SetComposePrompt overrides prompt assembly (tests).
func (h *Heartbeat) SetComposePrompt(f func(*store.Card, *store.Project) (string, string)) {
	h.composePrompt = f
}

// Constraints returns the current knob values.
func (h *Heartbeat) Constraints() Constraints {
	h.consMu.RLock()
	defer h.consMu.RUnlock()
	return h.cons
}

func (h *Heartbeat) reloadConstraints() {
	cons, err := LoadConstraints(filepath.Join(h.workspace, ConstraintsFile))
	if err != nil {
		slog.Warn("failed to load heartbeat constraints, keeping current", "error", err)
		return
	}
	h.consMu.Lock()
	h.cons = cons
	h.consMu.Unlock()
	h.registry.SetCapacity(cons.MaxConcurrentAgents)
	slog.Info("heartbeat constraints loaded",
		"max_concurrent", cons.MaxConcurrentAgents,
		"blocked_retry_min", cons.BlockedRetryMinutes,
		"builder", cons.BuilderEnabled,
		"synthesizer", cons.SynthesizerEnabled,
		"tick_seconds", cons.TickSeconds,
		"tick_cron", cons.TickCron)
}

// Start loads constraints, reconciles work left behind by a previous run,
// runs one immediate tick, then installs the periodic schedule and the
// constraints-document watch.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.reloadConstraints()
	h.Reconcile(ctx)
	h.Tick(ctx)

	if w, err := fsnotify.NewWatcher(); err != nil {
		slog.Warn("constraints hot reload unavailable", "error", err)
	} else if err := w.Add(h.workspace); err != nil {
		slog.Warn("constraints hot reload unavailable", "error", err)
		w.Close()
	} else {
		h.watcher = w
		go h.watchConstraints(w)
	}

	h.started = true
	go h.loop(ctx)
	return nil
}

// Stop halts the schedule and waits for the loop to exit. Idempotent. An
// in-flight tick finishes on its own; ticks are short by construction.
func (h *Heartbeat) Stop() {
	if !h.started {
		return
	}
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
	<-h.done
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)
	for {
		cons := h.Constraints()
		wait := time.Duration(cons.TickSeconds) * time.Second
		if next, err := cons.Schedule().NextAfter(time.Now()); err == nil {
			wait = time.Until(next)
		}
		timer := time.NewTimer(wait)
		select {
		case <-h.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			h.Tick(ctx)
			h.Synthesize(ctx)
		}
	}
}

func (h *Heartbeat) watchConstraints(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == ConstraintsFile && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.reloadConstraints()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("constraints watch error", "error", err)
		}
	}
}

// Reconcile resets cards whose agent died with the previous process and
// removes worktree directories no in_progress card references.
func (h *Heartbeat) Reconcile(ctx context.Context) {
	cards, err := h.kanban.ListInProgress()
	if err != nil {
		slog.Error("reconcile: list in_progress cards", "error", err)
		return
	}

	keep := make(map[string]bool)
	for _, c := range cards {
		switch c.AgentStatus {
		case store.AgentRunning, store.AgentBlocked:
			// The agent crashed or was killed; the workflow restarts from
			// scratch.
			if err := h.kanban.SkipToBack(c.ID); err != nil {
				slog.Warn("reconcile: skip to back", "card_id", c.ID, "error", err)
				continue
			}
			slog.Info("reconciled stuck card", "card_id", c.ID, "previous_status", c.AgentStatus)
		default:
			keep[idPrefix(c.ID)] = true
		}
	}

	projects, err := h.projects.GetProjects()
	if err != nil {
		slog.Error("reconcile: list projects", "error", err)
		return
	}
	for i := range projects {
		p := &projects[i]
		if p.Status != store.ProjectActive || p.RepoPath == "" {
			continue
		}
		m := worktree.NewManager(p.RepoPath)
		orphans, err := m.Orphans(keep)
		if err != nil {
			slog.Warn("reconcile: scan worktrees", "project_id", p.ID, "error", err)
			continue
		}
		for _, dir := range orphans {
			if err := m.Release(ctx, dir); err != nil {
				slog.Warn("reconcile: remove orphan worktree", "dir", dir, "error", err)
				continue
			}
			slog.Info("removed orphan worktree", "dir", dir)
		}
	}
}

// Tick runs one scheduling pass. Overlapping calls return immediately; the
// next scheduled tick is not deferred.
func (h *Heartbeat) Tick(ctx context.Context) {
	if !h.tickMu.TryLock() {
		return
	}
	defer h.tickMu.Unlock()

	cons := h.Constraints()
	projectsScanned := 0

	projects, err := h.projects.GetProjects()
	if err != nil {
		h.emitError("", "", fmt.Errorf("list projects: %w", err))
	} else {
		for i := range projects {
			p := &projects[i]
			if p.Status != store.ProjectActive {
				continue
			}
			projectsScanned++
			if !cons.BuilderEnabled {
				continue
			}
			if h.registry.HasProject(p.ID) {
				continue
			}
			if h.registry.CountRunning() >= cons.MaxConcurrentAgents {
				break
			}
			// A project cap only lowers the global one, never raises it.
			if p.MaxConcurrentAgents > 0 && h.registry.CountRunning() >= p.MaxConcurrentAgents {
				continue
			}

			card, err := h.kanban.GetNext(p.ID)
			if err != nil {
				h.emitError(p.ID, "", fmt.Errorf("next card: %w", err))
				continue
			}
			if card == nil {
				continue
			}

			res, err := h.registry.Reserve(card.ID, p.ID)
			if err != nil {
				continue
			}
			if err := h.spawnCard(ctx, card, p, res); err != nil {
				h.registry.ReleaseReservation(res)
				h.emitError(p.ID, card.ID, err)
				continue
			}
			h.sink.Emit(bus.Event{Type: bus.EventHeartbeatSpawned, Payload: map[string]any{
				"cardId": card.ID, "projectId": p.ID, "agent": string(card.Agent()),
			}})
		}
	}

	h.retrySweep(cons)

	h.sink.Emit(bus.Event{Type: bus.EventHeartbeatTick, Payload: map[string]any{
		"projectsScanned": projectsScanned,
		"agentsRunning":   h.registry.CountRunning(),
	}})
	if projectsScanned == 0 {
		h.sink.Emit(bus.Event{Type: bus.EventHeartbeatIdle})
	}
}

func (h *Heartbeat) spawnCard(ctx context.Context, card *store.Card, p *store.Project, res *registry.Reservation) error {
	promptText, resumeSessionID := h.composePrompt(card, p)
	_, err := h.spawner.Spawn(ctx, runner.Request{
		CardID:          card.ID,
		ProjectID:       p.ID,
		Agent:           card.Agent(),
		Title:           card.Title,
		Prompt:          promptText,
		RepoRoot:        p.RepoPath,
		ResumeSessionID: resumeSessionID,
		TimeoutMinutes:  p.AgentTimeoutMinutes,
	}, res)
	return err
}

func (h *Heartbeat) defaultComposePrompt(card *store.Card, p *store.Project) (string, string) {
	snapshot, sessionID, err := h.kanban.Resume(card.ID)
	if err != nil {
		snapshot, sessionID = "", ""
	}
	opts := prompt.Opts{
		SteeringBlock: h.steering.BuildPromptBlock(p.ID),
		Snapshot:      snapshot,
		SkillBlock:    skills.BuildPromptBlock(h.skills.SelectForTask(card)),
	}
	return h.assembler.Build(card, p, opts), sessionID
}

// retrySweep returns long-blocked cards to the backlog. Recently blocked
// cards stay put until the retry interval elapses.
func (h *Heartbeat) retrySweep(cons Constraints) {
	cards, err := h.kanban.ListInProgress()
	if err != nil {
		h.emitError("", "", fmt.Errorf("list in_progress: %w", err))
		return
	}
	threshold := h.clock.Now().Add(-time.Duration(cons.BlockedRetryMinutes) * time.Minute)
	for _, c := range cards {
		if c.AgentStatus != store.AgentBlocked || !c.UpdatedAt.Before(threshold) {
			continue
		}
		if err := h.kanban.SkipToBack(c.ID); err != nil {
			h.emitError(c.ProjectID, c.ID, fmt.Errorf("retry blocked card: %w", err))
			continue
		}
		h.sink.Emit(bus.Event{Type: bus.EventHeartbeatRetry, Payload: map[string]any{
			"cardId": c.ID, "previousStatus": string(store.AgentBlocked),
		}})
	}
}

// Synthesize runs the opt-in review sweep. Independent of Tick; both can run
// at the same time.
func (h *Heartbeat) Synthesize(ctx context.Context) {
	if !h.synthMu.TryLock() {
		return
	}
	defer h.synthMu.Unlock()

	if !h.Constraints().SynthesizerEnabled || h.synth == nil {
		return
	}
	merged, err := h.synth.Sweep(ctx)
	if err != nil {
		h.emitError("", "", fmt.Errorf("synthesize: %w", err))
		return
	}
	if merged > 0 {
		slog.Info("synthesizer merged review work", "cards", merged)
	}
}

func (h *Heartbeat) emitError(projectID, cardID string, err error) {
	payload := map[string]any{"error": err.Error()}
	if projectID != "" {
		payload["projectId"] = projectID
	}
	if cardID != "" {
		payload["cardId"] = cardID
	}
	h.sink.Emit(bus.Event{Type: bus.EventHeartbeatError, Payload: payload})
	slog.Warn("heartbeat error", "project_id", projectID, "card_id", cardID, "error", err)
}

func idPrefix(cardID string) string {
	if len(cardID) > 8 {
		return cardID[:8]
	}
	return cardID
}
