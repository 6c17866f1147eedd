package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/maslowhq/maslow/internal/heartbeat"
	"github.com/maslowhq/maslow/internal/model"
	"github.com/maslowhq/maslow/internal/store"
	"github.com/maslowhq/maslow/internal/voice"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.ChatSession
	usageLog []float64
	deletes  int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.ChatSession)}
}

func (f *fakeSessions) GetSession(chatID string) (*store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[chatID]
	if !ok {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (f *fakeSessions) SaveSession(s *store.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ChatID] = *s
	return nil
}

func (f *fakeSessions) UpdateLastActive(string) error { return nil }

func (f *fakeSessions) UpdateContextUsage(chatID string, pct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[chatID]
	s.ChatID = chatID
	s.ContextUsagePercent = pct
	f.sessions[chatID] = s
	f.usageLog = append(f.usageLog, pct)
	return nil
}

func (f *fakeSessions) DeleteSession(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, chatID)
	f.deletes++
	return nil
}

func (f *fakeSessions) GetLastActiveChatID() (string, error) { return "", nil }

type fakeModel struct {
	mu             sync.Mutex
	requests       []model.SendRequest
	script         func(req model.SendRequest) []model.Event
	handoffCalls   []string
	handoffSummary string
}

func (f *fakeModel) SendMessage(_ context.Context, req model.SendRequest) (<-chan model.Event, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	var events []model.Event
	if f.script != nil {
		events = f.script(req)
	}
	ch := make(chan model.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeModel) GenerateHandoff(_ context.Context, sessionID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handoffCalls = append(f.handoffCalls, sessionID)
	if f.handoffSummary == "" {
		return "summary of prior work", nil
	}
	return f.handoffSummary, nil
}

func (f *fakeModel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeChat struct {
	mu         sync.Mutex
	messages   []string
	voiceNotes int
}

func (f *fakeChat) SendMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeChat) SendTyping(context.Context, string)         {}
func (f *fakeChat) SendRecordingVoice(context.Context, string) {}

func (f *fakeChat) SendVoiceNote(context.Context, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceNotes++
	return nil
}

func (f *fakeChat) all() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.messages, "\n---\n")
}

type fakeBriefs struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeBriefs) SubmitTaskBrief(_ context.Context, text string, _ heartbeat.BriefOpts) (*store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	return &store.Card{ID: "card-1", Title: heartbeat.DeriveTitle(text)}, nil
}

type fakeVoice struct {
	transcript    string
	transcribeErr error
	synthesized   int
	avail         voice.Availability
}

func (f *fakeVoice) Transcribe(context.Context, []byte) (string, error) {
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeVoice) Synthesize(context.Context, string) ([]byte, error) {
	f.synthesized++
	return []byte("ogg"), nil
}

func (f *fakeVoice) IsAvailable() voice.Availability { return f.avail }

type env struct {
	mgr      *Manager
	sessions *fakeSessions
	model    *fakeModel
	chat     *fakeChat
	briefs   *fakeBriefs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		sessions: newFakeSessions(),
		model:    &fakeModel{},
		chat:     &fakeChat{},
		briefs:   &fakeBriefs{},
	}
	e.mgr = NewManager(e.sessions, e.model, e.chat, e.briefs, nil, t.TempDir())
	return e
}

func TestRestartCommandClearsSession(t *testing.T) {
	e := newEnv(t)
	e.sessions.sessions["c1"] = store.ChatSession{ChatID: "c1", ModelSessionID: "old"}

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "/restart_claude"})

	if e.sessions.deletes != 1 {
		t.Errorf("deletes = %d, want 1", e.sessions.deletes)
	}
	if !strings.Contains(e.chat.all(), "Session cleared") {
		t.Errorf("missing confirmation, got %q", e.chat.all())
	}
	if e.model.sendCount() != 0 {
		t.Error("model was called for a command")
	}
}

func TestBriefPrefixBypassesModel(t *testing.T) {
	e := newEnv(t)

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "TASK: refactor the config loader"})

	if len(e.briefs.texts) != 1 || e.briefs.texts[0] != "refactor the config loader" {
		t.Errorf("briefs = %v", e.briefs.texts)
	}
	if !strings.Contains(e.chat.all(), "Autonomous mode activated") {
		t.Errorf("missing confirmation, got %q", e.chat.all())
	}
	if e.model.sendCount() != 0 {
		t.Error("model was called for a task brief")
	}
}

func TestBriefNoActiveProject(t *testing.T) {
	e := newEnv(t)
	e.briefs.err = store.ErrNoActiveProject

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "Brief: anything"})

	if !strings.Contains(e.chat.all(), "No active project") {
		t.Errorf("got %q", e.chat.all())
	}
}

func TestConversationPersistsSessionID(t *testing.T) {
	e := newEnv(t)
	e.model.script = func(model.SendRequest) []model.Event {
		return []model.Event{
			{Type: model.EventText, SessionID: "s-new", Content: "hello there"},
			{Type: model.EventResult, SessionID: "s-new", Usage: &model.Usage{InputTokens: 100, OutputTokens: 50, ContextWindow: 200000}},
		}
	}

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "hi"})

	sess := e.sessions.sessions["c1"]
	if sess.ModelSessionID != "s-new" {
		t.Errorf("modelSessionID = %q, want s-new", sess.ModelSessionID)
	}
	if !strings.Contains(e.chat.all(), "hello there") {
		t.Errorf("reply not forwarded: %q", e.chat.all())
	}
	if len(e.sessions.usageLog) != 1 || e.sessions.usageLog[0] >= 1 {
		t.Errorf("usageLog = %v, want one sub-1%% entry", e.sessions.usageLog)
	}
}

func TestAutoHandoffAtThreshold(t *testing.T) {
	e := newEnv(t)
	e.sessions.sessions["c1"] = store.ChatSession{ChatID: "c1", ModelSessionID: "s-old", ContextUsagePercent: 40}
	e.model.handoffSummary = "we were refactoring the scheduler"
	e.model.script = func(model.SendRequest) []model.Event {
		return []model.Event{
			{Type: model.EventText, SessionID: "s-old", Content: "working on it"},
			// 120k of 200k = 60%, over the 50% auto-handoff threshold.
			{Type: model.EventResult, SessionID: "s-old", Usage: &model.Usage{InputTokens: 100000, OutputTokens: 20000, ContextWindow: 200000}},
		}
	}

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "keep going"})

	if len(e.model.handoffCalls) != 1 || e.model.handoffCalls[0] != "s-old" {
		t.Errorf("handoff calls = %v", e.model.handoffCalls)
	}
	sess, ok := e.sessions.sessions["c1"]
	if !ok {
		t.Fatal("no fresh session after auto-handoff")
	}
	if sess.ModelSessionID != "" {
		t.Errorf("fresh session carries old model session id %q", sess.ModelSessionID)
	}
	if sess.ContextUsagePercent != 0 {
		t.Errorf("contextUsagePercent = %v, want 0", sess.ContextUsagePercent)
	}
	out := e.chat.all()
	if !strings.Contains(out, "Auto-handoff") {
		t.Errorf("user never saw the auto-handoff notice: %q", out)
	}
	if !strings.Contains(out, "we were refactoring the scheduler") {
		t.Errorf("user never saw the summary: %q", out)
	}

	// The summary seeds the next exchange.
	e.model.script = func(req model.SendRequest) []model.Event {
		if !strings.HasPrefix(req.Prompt, "Previous session handoff: ") {
			t.Errorf("next prompt not seeded with handoff: %q", req.Prompt)
		}
		if req.ResumeSessionID != "" {
			t.Errorf("next exchange resumed old session %q", req.ResumeSessionID)
		}
		return nil
	}
	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "what were we doing?"})
}

func TestWarnThenContinuation(t *testing.T) {
	e := newEnv(t)
	// Reconfigured thresholds: warning fires below the auto-handoff bar.
	e.mgr.AutoHandoffPct = 90
	e.mgr.WarnPct = 40
	e.sessions.sessions["c1"] = store.ChatSession{ChatID: "c1", ModelSessionID: "s-old"}
	e.model.script = func(model.SendRequest) []model.Event {
		return []model.Event{
			{Type: model.EventResult, SessionID: "s-old", Usage: &model.Usage{InputTokens: 80000, OutputTokens: 20000, ContextWindow: 200000}},
		}
	}

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "more work"})
	if !strings.Contains(e.chat.all(), "context is getting full") {
		t.Fatalf("no warning sent: %q", e.chat.all())
	}
	if len(e.model.handoffCalls) != 0 {
		t.Fatal("handoff ran below the auto threshold")
	}

	e.model.script = nil
	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Text: "yes, continue"})
	if len(e.model.handoffCalls) != 1 {
		t.Errorf("handoff calls = %v, want 1 after affirmation", e.model.handoffCalls)
	}
}

func TestContinuationWithoutSession(t *testing.T) {
	e := newEnv(t)
	e.mgr.HandleContinuation(context.Background(), "c1")
	if !strings.Contains(e.chat.all(), "No active session") {
		t.Errorf("got %q", e.chat.all())
	}
	if len(e.model.handoffCalls) != 0 {
		t.Error("handoff attempted without a session")
	}
}

func TestVoiceTranscriptionFailure(t *testing.T) {
	e := newEnv(t)
	e.mgr.SetVoice(&fakeVoice{avail: voice.Availability{STT: false}})

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Voice: []byte("ogg")})

	if e.model.sendCount() != 0 {
		t.Error("model called despite failed transcription")
	}
	if !strings.Contains(e.chat.all(), "unavailable") {
		t.Errorf("got %q", e.chat.all())
	}
}

func TestVoiceRoundTrip(t *testing.T) {
	e := newEnv(t)
	v := &fakeVoice{transcript: "what is the status", avail: voice.Availability{STT: true, TTS: true}}
	e.mgr.SetVoice(v)
	e.model.script = func(req model.SendRequest) []model.Event {
		if req.Prompt != "what is the status" {
			t.Errorf("prompt = %q, want the transcript", req.Prompt)
		}
		return []model.Event{{Type: model.EventText, SessionID: "s1", Content: "all green"}}
	}

	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", Voice: []byte("ogg")})

	if v.synthesized != 1 {
		t.Errorf("synthesize calls = %d, want 1", v.synthesized)
	}
	if e.chat.voiceNotes != 1 {
		t.Errorf("voice notes = %d, want 1", e.chat.voiceNotes)
	}
}

func TestImageOnlyMessage(t *testing.T) {
	e := newEnv(t)
	e.model.script = func(req model.SendRequest) []model.Event {
		if req.Prompt != "please analyze this image" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		if len(req.ImagePaths) != 1 {
			t.Errorf("image paths = %v", req.ImagePaths)
		}
		return nil
	}
	e.mgr.HandleMessage(context.Background(), Message{ChatID: "c1", ImagePaths: []string{"/tmp/x.png"}})
	if e.model.sendCount() != 1 {
		t.Error("model not called for image-only message")
	}
}
