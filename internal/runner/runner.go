// Package runner spawns, supervises and tears down one external agent
// process per card inside its dedicated worktree.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/maslowhq/maslow/internal/bus"
	"github.com/maslowhq/maslow/internal/clock"
	"github.com/maslowhq/maslow/internal/registry"
	"github.com/maslowhq/maslow/internal/store"
	"github.com/maslowhq/maslow/internal/tracing"
	"github.com/maslowhq/maslow/internal/worktree"
)

const (
	// DefaultGrace is how long a cancelled agent gets between the graceful
	// signal and the forced kill.
	DefaultGrace = 5 * time.Second
	// DefaultTimeoutMinutes is the supervisor watchdog when the project has
	// no override.
	DefaultTimeoutMinutes = 60

	// snapshotTailLines is how much of the log tail goes into the context
	// snapshot saved on exit.
	snapshotTailLines = 40
)

// SpawnError reports a failed process launch.
type SpawnError struct {
	CardID string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn agent for card %s: %v", e.CardID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Worktrees is the slice of the worktree manager the runner needs.
type Worktrees interface {
	Acquire(ctx context.Context, cardID string, agent store.AgentKind, title string) (*worktree.Lease, error)
	Release(ctx context.Context, dir string) error
}

// Request describes one agent spawn.
type Request struct {
	CardID          string
	ProjectID       string
	Agent           store.AgentKind
	Title           string
	Prompt          string
	RepoRoot        string
	ResumeSessionID string
	TimeoutMinutes  int // 0 = DefaultTimeoutMinutes
}

// Runner launches agents and guarantees their cleanup.
type Runner struct {
	kanban   store.Kanban
	registry *registry.Registry
	sink     bus.Sink
	clock    clock.Source
	ollama   *OllamaClient

	// WorktreesFor returns the manager for a project repository.
	worktreesFor func(repoRoot string) Worktrees

	// ScrubEnvVars are credential variables withheld from agent children.
	ScrubEnvVars []string
	Grace        time.Duration

	// finalize pushes the branch and opens a PR after a clean exit.
	// Swappable in tests.
	finalize func(ctx context.Context, worktreeDir, branch string) error

	// buildCommand maps an agent kind to its argv. Swappable in tests.
	buildCommand func(agent store.AgentKind, prompt, resumeSessionID string) ([]string, error)

	shutdownOnce sync.Once
}

func New(kanban store.Kanban, reg *registry.Registry, sink bus.Sink, clk clock.Source, ollama *OllamaClient) *Runner {
	r := &Runner{
		kanban:       kanban,
		registry:     reg,
		sink:         sink,
		clock:        clk,
		ollama:       ollama,
		ScrubEnvVars: []string{"ANTHROPIC_API_KEY"},
		Grace:        DefaultGrace,
		worktreesFor: func(repoRoot string) Worktrees { return worktree.NewManager(repoRoot) },
	}
	r.finalize = r.pushAndCreatePR
	r.buildCommand = BuildCommand
	return r
}

// SetWorktreeFactory overrides worktree acquisition (tests).
func (r *Runner) SetWorktreeFactory(f func(repoRoot string) Worktrees) { r.worktreesFor = f }

// SetFinalize overrides the push+PR step (tests).
func (r *Runner) SetFinalize(f func(ctx context.Context, worktreeDir, branch string) error) {
	r.finalize = f
}

// SetCommandBuilder overrides the agent argv mapping (tests).
func (r *Runner) SetCommandBuilder(f func(agent store.AgentKind, prompt, resumeSessionID string) ([]string, error)) {
	r.buildCommand = f
}

// Spawn acquires a worktree, starts the agent, commits the reservation, and
// installs the supervisor task. It returns once the process is started and
// registered; it does not wait for completion. The reservation is consumed
// on success; on error the caller still owns it.
func (r *Runner) Spawn(ctx context.Context, req Request, res *registry.Reservation) (*registry.AgentProcess, error) {
	wt := r.worktreesFor(req.RepoRoot)
	lease, err := wt.Acquire(ctx, req.CardID, req.Agent, req.Title)
	if err != nil {
		return nil, err
	}

	supCtx, cancel := context.WithCancel(context.Background())
	supCtx, span := tracing.StartAgentSpan(supCtx, req.CardID, req.ProjectID, string(req.Agent))

	proc := &registry.AgentProcess{
		CardID:      req.CardID,
		ProjectID:   req.ProjectID,
		Agent:       req.Agent,
		Status:      registry.StatusRunning,
		StartedAt:   r.clock.Now(),
		WorktreeDir: lease.Dir,
		BranchName:  lease.BranchName,
		SpanID:      tracing.SpanID(span),
		Logs:        registry.NewLogRing(0),
		Cancel:      cancel,
		Done:        make(chan struct{}),
	}

	var cmd *exec.Cmd
	if req.Agent != store.AgentOllama {
		argv, err := r.buildCommand(req.Agent, req.Prompt, req.ResumeSessionID)
		if err != nil {
			cancel()
			span.End()
			wt.Release(ctx, lease.Dir)
			return nil, &SpawnError{CardID: req.CardID, Err: err}
		}
		cmd = exec.Command(argv[0], argv[1:]...)
		cmd.Dir = lease.Dir
		cmd.Env = scrubEnv(os.Environ(), r.ScrubEnvVars)
		// Own process group so the graceful signal reaches the whole tree.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		stdout, pipeErr := cmd.StdoutPipe()
		if pipeErr != nil {
			cancel()
			span.End()
			wt.Release(ctx, lease.Dir)
			return nil, &SpawnError{CardID: req.CardID, Err: pipeErr}
		}
		cmd.Stderr = cmd.Stdout // merge stderr into the same pipe

		if startErr := cmd.Start(); startErr != nil {
			cancel()
			span.End()
			wt.Release(ctx, lease.Dir)
			return nil, &SpawnError{CardID: req.CardID, Err: startErr}
		}
		proc.Cmd = cmd
		proc.LogsDrained = make(chan struct{})
		go func() {
			streamLogs(stdout, proc.Logs)
			close(proc.LogsDrained)
		}()
	}

	if err := r.registry.Commit(res, proc); err != nil {
		// Reservation expired while we were setting up; tear down.
		r.killProcessGroup(cmd)
		cancel()
		span.End()
		wt.Release(ctx, lease.Dir)
		return nil, &SpawnError{CardID: req.CardID, Err: err}
	}

	if err := r.kanban.StartWork(req.CardID, req.Agent); err != nil {
		slog.Warn("failed to mark card started", "card_id", req.CardID, "error", err)
	}
	r.sink.Emit(bus.Event{Type: bus.EventAgentStarted, Payload: map[string]any{
		"cardId": req.CardID, "projectId": req.ProjectID, "agent": string(req.Agent), "branch": lease.BranchName,
	}})
	slog.Info("agent spawned", "card_id", req.CardID, "agent", req.Agent, "worktree", lease.Dir)

	go r.supervise(supCtx, span, proc, wt, req)
	return proc, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeCancelled
)

// supervise waits for the agent to finish, applies the watchdog, and runs
// the guaranteed cleanup: snapshot, worktree release, registry slot, one
// terminal broadcast.
func (r *Runner) supervise(ctx context.Context, span trace.Span, proc *registry.AgentProcess, wt Worktrees, req Request) {
	timeoutMin := req.TimeoutMinutes
	if timeoutMin <= 0 {
		timeoutMin = DefaultTimeoutMinutes
	}

	result, reason := r.await(ctx, proc, req, time.Duration(timeoutMin)*time.Minute)

	// Push + PR gate completion: a clean exit that cannot publish its
	// branch is still a failure.
	if result == outcomeCompleted && req.Agent != store.AgentOllama {
		if err := r.finalize(context.Background(), proc.WorktreeDir, proc.BranchName); err != nil {
			result = outcomeFailed
			reason = fmt.Sprintf("publish branch: %v", err)
		}
	}

	r.cleanup(proc, wt, req, result, reason)
	span.End()
	close(proc.Done)
}

// await blocks until process exit, watchdog expiry, or cancellation.
func (r *Runner) await(ctx context.Context, proc *registry.AgentProcess, req Request, timeout time.Duration) (outcome, string) {
	if req.Agent == store.AgentOllama {
		return r.awaitOllama(ctx, proc, req, timeout)
	}

	exited := make(chan error, 1)
	go func() {
		// Drain the pipe before Wait; Wait closes it.
		<-proc.LogsDrained
		exited <- proc.Cmd.Wait()
	}()

	select {
	case err := <-exited:
		if err != nil {
			return outcomeFailed, fmt.Sprintf("agent exited: %v", err)
		}
		return outcomeCompleted, ""
	case <-time.After(timeout):
		r.gracefulStop(proc, exited)
		return outcomeFailed, fmt.Sprintf("supervisor timeout after %s", timeout)
	case <-ctx.Done():
		r.gracefulStop(proc, exited)
		return outcomeCancelled, "cancelled"
	}
}

func (r *Runner) awaitOllama(ctx context.Context, proc *registry.AgentProcess, req Request, timeout time.Duration) (outcome, string) {
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := r.ollama.Generate(genCtx, req.Prompt, proc.Logs.Append)
	switch {
	case ctx.Err() != nil:
		return outcomeCancelled, "cancelled"
	case genCtx.Err() != nil:
		return outcomeFailed, fmt.Sprintf("supervisor timeout after %s", timeout)
	case err != nil:
		return outcomeFailed, err.Error()
	}
	return outcomeCompleted, ""
}

// gracefulStop signals the process group, waits Grace, then kills.
func (r *Runner) gracefulStop(proc *registry.AgentProcess, exited <-chan error) {
	if proc.Cmd == nil || proc.Cmd.Process == nil {
		return
	}
	pid := proc.Cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-exited:
		return
	case <-time.After(r.Grace):
		syscall.Kill(-pid, syscall.SIGKILL)
		<-exited
	}
}

func (r *Runner) killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	cmd.Wait()
}

// cleanup runs the post-exit invariants. Each step is independent so a
// failure in one never skips the rest.
func (r *Runner) cleanup(proc *registry.AgentProcess, wt Worktrees, req Request, result outcome, reason string) {
	// (a) save a resumable snapshot with the log tail.
	snapshot := strings.Join(proc.Logs.Tail(snapshotTailLines), "\n")
	if err := r.kanban.SaveContext(proc.CardID, snapshot, proc.SpanID); err != nil && !store.IsCardNotFound(err) {
		slog.Warn("failed to save context snapshot", "card_id", proc.CardID, "error", err)
	}

	// (b) release the worktree.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := wt.Release(releaseCtx, proc.WorktreeDir); err != nil {
		slog.Error("failed to release worktree", "card_id", proc.CardID, "dir", proc.WorktreeDir, "error", err)
	}
	cancel()

	// (c) vacate the registry slot.
	r.registry.Release(proc.CardID)

	// (d) exactly one terminal broadcast, plus the card update.
	payload := map[string]any{"cardId": proc.CardID, "projectId": proc.ProjectID, "agent": string(req.Agent)}
	switch result {
	case outcomeCompleted:
		proc.Status = registry.StatusCompleted
		if err := r.kanban.CompleteWork(proc.CardID); err != nil {
			slog.Warn("failed to complete card", "card_id", proc.CardID, "error", err)
		}
		r.sink.Emit(bus.Event{Type: bus.EventAgentCompleted, Payload: payload})
		slog.Info("agent completed", "card_id", proc.CardID, "branch", proc.BranchName)
	case outcomeFailed:
		proc.Status = registry.StatusFailed
		if err := r.kanban.UpdateAgentStatus(proc.CardID, store.AgentBlocked, reason); err != nil {
			slog.Warn("failed to mark card blocked", "card_id", proc.CardID, "error", err)
		}
		payload["reason"] = reason
		r.sink.Emit(bus.Event{Type: bus.EventAgentFailed, Payload: payload})
		slog.Warn("agent failed", "card_id", proc.CardID, "reason", reason)
	case outcomeCancelled:
		proc.Status = registry.StatusIdle
		// The workflow restarts from scratch on the next tick.
		if err := r.kanban.SkipToBack(proc.CardID); err != nil && !store.IsCardNotFound(err) {
			slog.Warn("failed to return cancelled card to backlog", "card_id", proc.CardID, "error", err)
		}
		r.sink.Emit(bus.Event{Type: bus.EventAgentCancelled, Payload: payload})
		slog.Info("agent cancelled", "card_id", proc.CardID)
	}
}

// Stop cancels the card's agent and waits for its cleanup to finish.
func (r *Runner) Stop(cardID string) error {
	proc := r.registry.Get(cardID)
	if proc == nil {
		return &store.ErrCardNotFound{CardID: cardID}
	}
	proc.Cancel()
	<-proc.Done
	return nil
}

// ShutdownAll cancels every live agent concurrently and waits for all of
// them to reach a terminal state. Idempotent.
func (r *Runner) ShutdownAll() {
	r.shutdownOnce.Do(func() {
		procs := r.registry.Snapshot()
		if len(procs) == 0 {
			return
		}
		slog.Info("shutting down agents", "count", len(procs))
		var wg sync.WaitGroup
		for _, proc := range procs {
			wg.Add(1)
			go func(p *registry.AgentProcess) {
				defer wg.Done()
				p.Cancel()
				<-p.Done
			}(proc)
		}
		wg.Wait()
	})
}

// pushAndCreatePR publishes the branch and opens a pull request.
func (r *Runner) pushAndCreatePR(ctx context.Context, worktreeDir, branch string) error {
	push := exec.CommandContext(ctx, "git", "push", "-u", "origin", branch)
	push.Dir = worktreeDir
	if out, err := push.CombinedOutput(); err != nil {
		return fmt.Errorf("git push %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}

	pr := exec.CommandContext(ctx, "gh", "pr", "create", "--fill", "--head", branch)
	pr.Dir = worktreeDir
	if out, err := pr.CombinedOutput(); err != nil {
		return fmt.Errorf("gh pr create for %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func streamLogs(pipe io.Reader, ring *registry.LogRing) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring.Append(scanner.Text())
	}
}
