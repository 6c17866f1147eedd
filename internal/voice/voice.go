// Package voice proxies speech-to-text and text-to-speech through the
// operator's speaking service over HTTP.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	transcribeEndpoint = "/transcribe_audio"
	synthesizeEndpoint = "/synthesize_speech"

	defaultTimeout = 30 * time.Second
)

// Availability reports which directions the proxy supports.
type Availability struct {
	STT bool `json:"stt"`
	TTS bool `json:"tts"`
}

// Client talks to the speaking service. A zero-value URL disables the
// corresponding direction.
type Client struct {
	sttURL string
	ttsURL string
	http   *http.Client
}

func NewClient(sttURL, ttsURL string) *Client {
	return &Client{
		sttURL: sttURL,
		ttsURL: ttsURL,
		http:   &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) IsAvailable() Availability {
	return Availability{STT: c.sttURL != "", TTS: c.ttsURL != ""}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe sends audio bytes as multipart form data and returns the
// transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.sttURL == "" {
		return "", fmt.Errorf("voice: stt not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return "", fmt.Errorf("voice: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("voice: write audio bytes: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("voice: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sttURL+transcribeEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("voice: build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice: transcribe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice: transcribe returned %s", resp.Status)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("voice: decode transcript: %w", err)
	}
	return parsed.Transcript, nil
}

// Synthesize renders text to audio bytes (ogg/opus from the proxy).
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.ttsURL == "" {
		return nil, fmt.Errorf("voice: tts not configured")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("voice: marshal synthesize payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsURL+synthesizeEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("voice: build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: synthesize request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice: synthesize returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
