// Package session routes operator chat messages: commands, task briefs,
// continuation affirmations, and conversational exchanges with the model.
// Messages within one chat are processed strictly in arrival order.
package session

import (
	"context"
	"sync"

	"github.com/maslowhq/maslow/internal/heartbeat"
	"github.com/maslowhq/maslow/internal/store"
	"github.com/maslowhq/maslow/internal/voice"
)

// Adapter is the chat surface the manager replies through.
type Adapter interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string)
	SendRecordingVoice(ctx context.Context, chatID string)
	SendVoiceNote(ctx context.Context, chatID string, audio []byte) error
}

// Voice is the speech proxy capability; voice.Client implements it.
type Voice interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	IsAvailable() voice.Availability
}

// Briefs accepts task briefs; heartbeat.Heartbeat implements it.
type Briefs interface {
	SubmitTaskBrief(ctx context.Context, text string, opts heartbeat.BriefOpts) (*store.Card, error)
}

// Thinking is the decision journal capability; thinking.Partner implements
// it.
type Thinking interface {
	LogDecision(title, detail string) error
	AddAssumption(assumption string) error
	UpdateStateSummary(summary string) error
}

// Message is one inbound chat message with its attachments already resolved
// to bytes and local paths by the adapter.
type Message struct {
	ChatID     string
	Text       string
	Caption    string
	Voice      []byte
	ImagePaths []string
}

// chatState serializes processing per chat and carries the continuation
// flags between messages.
type chatState struct {
	mu                  sync.Mutex
	pendingContinuation bool
	// pendingHandoff seeds the next exchange after an auto-handoff.
	pendingHandoff string
}

func (m *Manager) state(chatID string) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.chats[chatID]
	if !ok {
		st = &chatState{}
		m.chats[chatID] = st
	}
	return st
}
