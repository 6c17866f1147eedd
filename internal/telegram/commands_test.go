package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  int
	}{
		{"short stays whole", "hello", 4096, 1},
		{"splits on newline", strings.Repeat("line\n", 10), 12, 5},
		{"hard split without newlines", strings.Repeat("a", 25), 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitMessage(tt.text, tt.limit)
			if len(chunks) != tt.want {
				t.Errorf("got %d chunks, want %d: %q", len(chunks), tt.want, chunks)
			}
			for _, chunk := range chunks {
				if len(chunk) > tt.limit {
					t.Errorf("chunk exceeds limit: %d > %d", len(chunk), tt.limit)
				}
				if chunk == "" {
					t.Error("empty chunk emitted")
				}
			}
		})
	}

	joined := strings.Join(splitMessage("abc\ndef\nghi", 7), "\n")
	if joined != "abc\ndef\nghi" {
		t.Errorf("content lost in split: %q", joined)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}
