package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// replyStatus renders the live agent list for /status.
func (c *Channel) replyStatus(ctx context.Context, chatID string) {
	procs := c.status.ListRunning()
	if len(procs) == 0 {
		c.SendMessage(ctx, chatID, "No agents running.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d agent(s) running:\n", len(procs))
	for _, p := range procs {
		up := time.Since(p.StartedAt).Round(time.Second)
		fmt.Fprintf(&b, "\n• %s (%s) on %s, up %s\n  branch %s\n", shortID(p.CardID), p.Agent, p.ProjectID, up, p.BranchName)
		if len(p.LastLogs) > 0 {
			fmt.Fprintf(&b, "  last: %s\n", truncateLine(p.LastLogs[len(p.LastLogs)-1], 120))
		}
	}
	c.SendMessage(ctx, chatID, b.String())
}

// replyStop cancels the agent whose card id starts with the given prefix.
func (c *Channel) replyStop(ctx context.Context, chatID, prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		c.SendMessage(ctx, chatID, "Usage: /stop <card id prefix>")
		return
	}

	for _, p := range c.status.ListRunning() {
		if !strings.HasPrefix(p.CardID, prefix) {
			continue
		}
		if err := c.stopper.Stop(p.CardID); err != nil {
			c.SendMessage(ctx, chatID, "Failed to stop "+shortID(p.CardID)+": "+err.Error())
			return
		}
		c.SendMessage(ctx, chatID, "Stopped agent on card "+shortID(p.CardID)+"; the card returned to the backlog.")
		return
	}
	c.SendMessage(ctx, chatID, "No running agent matches "+prefix+".")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// splitMessage chunks text on line boundaries where possible.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
