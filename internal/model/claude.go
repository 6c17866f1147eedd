package model

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultContextWindow is claude's native window, used when the stream does
// not report one.
const DefaultContextWindow = 200000

const handoffPrompt = `Summarize this conversation as a handoff for a fresh session.
Include: what we were working on, decisions made, open threads, and the
exact next step. Be specific; the new session has no other context.`

// ClaudeCLI drives the claude binary in print mode with NDJSON streaming.
type ClaudeCLI struct {
	// Binary defaults to "claude".
	Binary        string
	ContextWindow int
	// MaxTurns caps tool iterations per exchange.
	MaxTurns int
}

func NewClaudeCLI() *ClaudeCLI {
	return &ClaudeCLI{Binary: "claude", ContextWindow: DefaultContextWindow, MaxTurns: 50}
}

// streamLine is one NDJSON line from claude --output-format stream-json.
type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Usage     *streamUsage    `json:"usage,omitempty"`
}

type streamUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

func (c *ClaudeCLI) args(req SendRequest) []string {
	args := []string{
		"-p",
		"--verbose",
		"--output-format", "stream-json",
		"--permission-mode", "bypassPermissions",
		"--max-turns", fmt.Sprintf("%d", c.MaxTurns),
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	prompt := req.Prompt
	for _, p := range req.ImagePaths {
		prompt += "\n[Attached image: " + p + "]"
	}
	return append(args, prompt)
}

// SendMessage spawns the CLI and translates its NDJSON stream into Events.
func (c *ClaudeCLI) SendMessage(ctx context.Context, req SendRequest) (<-chan Event, error) {
	cmd := exec.CommandContext(ctx, c.binary(), c.args(req)...)
	cmd.Dir = req.CWD

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claude stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start claude: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var parsed streamLine
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				slog.Debug("claude stream: skipping unparseable line", "line", truncate(line, 120))
				continue
			}
			for _, ev := range c.translate(parsed) {
				events <- ev
			}
		}

		if err := cmd.Wait(); err != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = err.Error()
			}
			events <- Event{Type: EventError, Err: (&StreamError{Detail: detail}).Error()}
		}
	}()

	return events, nil
}

func (c *ClaudeCLI) translate(line streamLine) []Event {
	switch line.Type {
	case "assistant":
		var msg streamMessage
		if err := json.Unmarshal(line.Message, &msg); err != nil {
			return nil
		}
		var out []Event
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					out = append(out, Event{Type: EventText, SessionID: line.SessionID, Content: block.Text})
				}
			case "tool_use":
				out = append(out, Event{
					Type:      EventToolCall,
					SessionID: line.SessionID,
					ToolName:  block.Name,
					Content:   truncate(string(block.Input), 200),
				})
			}
		}
		return out

	case "user":
		// Tool results echo back as user messages in the stream.
		var msg streamMessage
		if err := json.Unmarshal(line.Message, &msg); err != nil {
			return nil
		}
		var out []Event
		for _, block := range msg.Content {
			if block.Type == "tool_result" {
				out = append(out, Event{
					Type:      EventToolResult,
					SessionID: line.SessionID,
					Content:   truncate(string(block.Content), 200),
				})
			}
		}
		return out

	case "result":
		if line.IsError {
			return []Event{{Type: EventError, SessionID: line.SessionID, Err: line.Result}}
		}
		ev := Event{Type: EventResult, SessionID: line.SessionID, Content: line.Result}
		if line.Usage != nil {
			ev.Usage = &Usage{
				InputTokens:   line.Usage.InputTokens,
				OutputTokens:  line.Usage.OutputTokens,
				ContextWindow: c.contextWindow(),
			}
		}
		return []Event{ev}
	}
	return nil
}

// GenerateHandoff resumes the old session with a one-turn ceiling and
// returns the summary text.
func (c *ClaudeCLI) GenerateHandoff(ctx context.Context, sessionID, cwd string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary(),
		"-p",
		"--output-format", "json",
		"--resume", sessionID,
		"--max-turns", "1",
		handoffPrompt,
	)
	cmd.Dir = cwd

	out, err := cmd.Output()
	if err != nil {
		return "", &HandoffError{SessionID: sessionID, Err: err}
	}

	var parsed struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		// Older CLI versions print plain text in -p mode.
		return strings.TrimSpace(string(out)), nil
	}
	if parsed.Result == "" {
		return "", &HandoffError{SessionID: sessionID, Err: fmt.Errorf("empty summary")}
	}
	return parsed.Result, nil
}

func (c *ClaudeCLI) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "claude"
}

func (c *ClaudeCLI) contextWindow() int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	return DefaultContextWindow
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
