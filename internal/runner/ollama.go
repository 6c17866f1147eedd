package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OllamaClient drives the ollama agent over its local HTTP API instead of a
// shell invocation.
type OllamaClient struct {
	Host       string // e.g. http://127.0.0.1:11434
	Model      string
	MaxRetries int
	HTTP       *http.Client
}

func NewOllamaClient(host, modelName string, maxRetries int) *OllamaClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OllamaClient{
		Host:       strings.TrimRight(host, "/"),
		Model:      modelName,
		MaxRetries: maxRetries,
		HTTP:       &http.Client{}, // streaming; no overall timeout
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate streams a completion, calling onLine per response chunk, and
// returns the full response. Transient failures retry up to MaxRetries.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, onLine func(string)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		out, err := c.generateOnce(ctx, prompt, onLine)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("ollama generate failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return "", fmt.Errorf("ollama generate after %d attempts: %w", c.MaxRetries, lastErr)
}

func (c *OllamaClient) generateOnce(ctx context.Context, prompt string, onLine func(string)) (string, error) {
	payload, err := json.Marshal(ollamaRequest{Model: c.Model, Prompt: prompt, Stream: true})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %s", resp.Status)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var chunk ollamaChunk
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onLine != nil {
				onLine(chunk.Response)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read ollama stream: %w", err)
	}
	return full.String(), nil
}

// Ping checks the host is reachable (doctor command).
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s", resp.Status)
	}
	return nil
}
