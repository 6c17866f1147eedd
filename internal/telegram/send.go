package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// telegramMessageLimit is the Bot API ceiling per message.
const telegramMessageLimit = 4096

// maxDownloadBytes bounds attachment downloads.
const maxDownloadBytes = 20 * 1024 * 1024

// SendMessage delivers text, splitting anything over the API limit.
func (c *Channel) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(text, telegramMessageLimit) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator. Best effort.
func (c *Channel) SendTyping(ctx context.Context, chatID string) {
	c.chatAction(ctx, chatID, telego.ChatActionTyping)
}

// SendRecordingVoice shows the record-voice indicator. Best effort.
func (c *Channel) SendRecordingVoice(ctx context.Context, chatID string) {
	c.chatAction(ctx, chatID, telego.ChatActionRecordVoice)
}

func (c *Channel) chatAction(ctx context.Context, chatID string, action string) {
	id, err := parseChatID(chatID)
	if err != nil {
		return
	}
	if err := c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(id), action)); err != nil {
		slog.Debug("chat action failed", "action", action, "error", err)
	}
}

// SendVoiceNote delivers synthesized audio as a voice message.
func (c *Channel) SendVoiceNote(ctx context.Context, chatID string, audio []byte) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	voice := tu.Voice(tu.ID(id), tu.File(tu.NameReader(bytes.NewReader(audio), "reply.ogg")))
	if _, err := c.bot.SendVoice(ctx, voice); err != nil {
		return fmt.Errorf("telegram send voice: %w", err)
	}
	return nil
}

// fileBytes downloads a Telegram file into memory.
func (c *Channel) fileBytes(ctx context.Context, fileID string) ([]byte, error) {
	body, err := c.openFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, maxDownloadBytes))
}

// fileToTemp downloads a Telegram file to a temp path for CLI consumption.
func (c *Channel) fileToTemp(ctx context.Context, fileID string) (string, error) {
	body, err := c.openFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "maslow_media_*.jpg")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, io.LimitReader(body, maxDownloadBytes)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download media: %w", err)
	}
	return tmp.Name(), nil
}

func (c *Channel) openFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxDownloadBytes {
		return nil, fmt.Errorf("file too large: %d bytes", file.FileSize)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	return id, nil
}
