package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/maslowhq/maslow/internal/heartbeat"
	"github.com/maslowhq/maslow/internal/model"
	"github.com/maslowhq/maslow/internal/store"
)

const (
	// DefaultAutoHandoffPct triggers an automatic session handoff once the
	// context window is this full.
	DefaultAutoHandoffPct = 50
	// DefaultWarnPct offers a manual continuation. Only reachable when the
	// operator reconfigures the auto threshold above it.
	DefaultWarnPct = 80
)

var briefPrefix = regexp.MustCompile(`^(TASK:|Brief:)\s*`)

// affirmations mark a reply to the continuation warning as consent.
var affirmations = []string{"continue", "yes", "go ahead", "do it", "please"}

// Manager is the conversation-side orchestrator.
type Manager struct {
	sessions store.ChatSessions
	model    model.Conversational
	chat     Adapter
	voice    Voice // nil when no speech proxy is configured
	briefs   Briefs
	actions  *ActionExecutor

	// workdir is the model's working directory for fresh sessions.
	workdir string

	AutoHandoffPct float64
	WarnPct        float64

	mu    sync.Mutex
	chats map[string]*chatState
}

func NewManager(sessions store.ChatSessions, conv model.Conversational, chat Adapter, briefs Briefs, actions *ActionExecutor, workdir string) *Manager {
	return &Manager{
		sessions:       sessions,
		model:          conv,
		chat:           chat,
		briefs:         briefs,
		actions:        actions,
		workdir:        workdir,
		AutoHandoffPct: DefaultAutoHandoffPct,
		WarnPct:        DefaultWarnPct,
		chats:          make(map[string]*chatState),
	}
}

// SetVoice installs the speech proxy.
func (m *Manager) SetVoice(v Voice) { m.voice = v }

// HandleMessage processes one inbound message. Safe for concurrent use;
// messages for the same chat are serialized.
func (m *Manager) HandleMessage(ctx context.Context, msg Message) {
	st := m.state(msg.ChatID)
	st.mu.Lock()
	defer st.mu.Unlock()
	m.handleLocked(ctx, st, msg)
}

func (m *Manager) handleLocked(ctx context.Context, st *chatState, msg Message) {
	chatID := msg.ChatID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	usedVoice := false
	if len(msg.Voice) > 0 {
		transcript, err := m.transcribe(ctx, msg.Voice)
		if err != nil {
			// The model is not called on transcription failure.
			m.reply(ctx, chatID, "Voice transcription is unavailable right now. Please type your message.")
			return
		}
		text = strings.TrimSpace(transcript)
		usedVoice = true
	}

	if text == "" && len(msg.ImagePaths) > 0 {
		text = "please analyze this image"
	}
	if text == "" {
		return
	}

	switch {
	case text == "/restart_claude":
		if err := m.sessions.DeleteSession(chatID); err != nil {
			slog.Warn("failed to delete chat session", "chat_id", chatID, "error", err)
		}
		st.pendingContinuation = false
		st.pendingHandoff = ""
		m.reply(ctx, chatID, "Session cleared")

	case briefPrefix.MatchString(text):
		m.submitBrief(ctx, chatID, briefPrefix.ReplaceAllString(text, ""))

	case st.pendingContinuation && isAffirmation(text):
		st.pendingContinuation = false
		m.continueLocked(ctx, st, chatID)

	default:
		m.converseLocked(ctx, st, chatID, text, usedVoice, msg.ImagePaths)
	}
}

func (m *Manager) submitBrief(ctx context.Context, chatID, text string) {
	if _, err := m.briefs.SubmitTaskBrief(ctx, text, heartbeat.BriefOpts{}); err != nil {
		if errors.Is(err, store.ErrNoActiveProject) {
			m.reply(ctx, chatID, "No active project to attach this brief to.")
			return
		}
		m.reply(ctx, chatID, "Could not create the task: "+err.Error())
		return
	}
	m.reply(ctx, chatID, "Autonomous mode activated")
}

// converseLocked runs one model exchange and applies the streaming policy.
func (m *Manager) converseLocked(ctx context.Context, st *chatState, chatID, text string, usedVoice bool, images []string) {
	sess := m.loadOrCreate(chatID)
	cwd := sess.WorkingDirectory
	if cwd == "" {
		cwd = m.workdir
	}

	prompt := text
	if st.pendingHandoff != "" {
		prompt = "Previous session handoff: " + st.pendingHandoff + "\n\n" + text
		st.pendingHandoff = ""
	}

	m.chat.SendTyping(ctx, chatID)
	events, err := m.model.SendMessage(ctx, model.SendRequest{
		Prompt:          prompt,
		CWD:             cwd,
		ResumeSessionID: sess.ModelSessionID,
		ImagePaths:      images,
	})
	if err != nil {
		m.reply(ctx, chatID, "Model error: "+err.Error())
		return
	}

	var replyParts []string
	suppress := false
	for ev := range events {
		if suppress {
			continue
		}
		switch ev.Type {
		case model.EventText:
			m.recordSessionID(sess, ev.SessionID)
			if ev.Content != "" {
				replyParts = append(replyParts, ev.Content)
				m.reply(ctx, chatID, ev.Content)
			}

		case model.EventToolCall:
			m.recordSessionID(sess, ev.SessionID)
			m.reply(ctx, chatID, fmt.Sprintf("🔧 %s %s", ev.ToolName, ev.Content))

		case model.EventToolResult:
			m.reply(ctx, chatID, "→ "+ev.Content)

		case model.EventError:
			m.reply(ctx, chatID, "Error: "+ev.Err)

		case model.EventResult:
			m.recordSessionID(sess, ev.SessionID)
			if ev.Usage == nil || ev.Usage.ContextWindow <= 0 {
				continue
			}
			pct := float64(ev.Usage.InputTokens+ev.Usage.OutputTokens) / float64(ev.Usage.ContextWindow) * 100
			if err := m.sessions.UpdateContextUsage(chatID, pct); err != nil {
				slog.Warn("failed to persist context usage", "chat_id", chatID, "error", err)
			}
			switch {
			case pct >= m.AutoHandoffPct:
				m.autoHandoff(ctx, st, chatID, sess, cwd)
				suppress = true
			case pct >= m.WarnPct:
				m.reply(ctx, chatID, "This session's context is getting full. Say \"continue\" and I'll hand off to a fresh session.")
				st.pendingContinuation = true
			}
		}
	}

	if err := m.sessions.UpdateLastActive(chatID); err != nil {
		slog.Warn("failed to update last-active", "chat_id", chatID, "error", err)
	}

	reply := strings.Join(replyParts, "\n")
	if m.actions != nil {
		m.actions.Execute(ctx, reply)
	}

	if usedVoice && reply != "" && m.voice != nil && m.voice.IsAvailable().TTS {
		m.chat.SendRecordingVoice(ctx, chatID)
		audio, err := m.voice.Synthesize(ctx, reply)
		if err != nil {
			slog.Warn("voice synthesis failed", "chat_id", chatID, "error", err)
			return
		}
		if err := m.chat.SendVoiceNote(ctx, chatID, audio); err != nil {
			slog.Warn("failed to send voice note", "chat_id", chatID, "error", err)
		}
	}
}

func (m *Manager) loadOrCreate(chatID string) *store.ChatSession {
	sess, err := m.sessions.GetSession(chatID)
	if err != nil {
		slog.Warn("failed to load chat session", "chat_id", chatID, "error", err)
	}
	if sess == nil {
		sess = &store.ChatSession{ChatID: chatID, WorkingDirectory: m.workdir}
		if err := m.sessions.SaveSession(sess); err != nil {
			slog.Warn("failed to save new chat session", "chat_id", chatID, "error", err)
		}
	}
	return sess
}

func (m *Manager) recordSessionID(sess *store.ChatSession, sessionID string) {
	if sessionID == "" || sessionID == sess.ModelSessionID {
		return
	}
	sess.ModelSessionID = sessionID
	if err := m.sessions.SaveSession(sess); err != nil {
		slog.Warn("failed to persist model session id", "chat_id", sess.ChatID, "error", err)
	}
}

func (m *Manager) transcribe(ctx context.Context, audio []byte) (string, error) {
	if m.voice == nil || !m.voice.IsAvailable().STT {
		return "", fmt.Errorf("speech-to-text not configured")
	}
	return m.voice.Transcribe(ctx, audio)
}

func (m *Manager) reply(ctx context.Context, chatID, text string) {
	if err := m.chat.SendMessage(ctx, chatID, text); err != nil {
		slog.Warn("failed to send chat message", "chat_id", chatID, "error", err)
	}
}

func isAffirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, a := range affirmations {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
