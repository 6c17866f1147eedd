// Package model defines the conversational model capability and its claude
// CLI implementation. The session manager consumes the interface; tests use
// scripted fakes.
package model

import (
	"context"
	"fmt"
)

// EventType tags one streamed model event.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventResult     EventType = "result"
)

// Usage is the token accounting carried by a result event.
type Usage struct {
	InputTokens  int
	OutputTokens int
	// ContextWindow is the model's native window; used to compute usage
	// percent.
	ContextWindow int
}

// Event is one element of a model response stream.
type Event struct {
	Type      EventType
	SessionID string
	Content   string
	ToolName  string
	Err       string
	Usage     *Usage
}

// SendRequest is one conversational exchange.
type SendRequest struct {
	Prompt          string
	CWD             string
	ResumeSessionID string
	// ImagePaths are local files referenced from the prompt.
	ImagePaths []string
}

// Conversational streams replies and generates handoff summaries.
type Conversational interface {
	// SendMessage starts one exchange. The channel closes when the stream
	// ends; a stream-level failure surfaces as a final error event.
	SendMessage(ctx context.Context, req SendRequest) (<-chan Event, error)
	// GenerateHandoff resumes the session with a one-turn ceiling and
	// returns a handoff summary of the conversation so far.
	GenerateHandoff(ctx context.Context, sessionID, cwd string) (string, error)
}

// StreamError reports a model stream that failed or aborted.
type StreamError struct {
	Detail string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("model stream error: %s", e.Detail)
}

// HandoffError reports a failed handoff generation.
type HandoffError struct {
	SessionID string
	Err       error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("handoff for session %s: %v", e.SessionID, e.Err)
}

func (e *HandoffError) Unwrap() error { return e.Err }
