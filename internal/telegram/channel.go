// Package telegram connects the single operator to the engine over the
// Telegram Bot API using long polling. Messages from any other user are
// dropped.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/maslowhq/maslow/internal/registry"
	"github.com/maslowhq/maslow/internal/session"
)

// Config is the channel's process-level configuration.
type Config struct {
	Token string
	// UserID is the sole authorized operator.
	UserID int64
}

// Handler consumes inbound messages; session.Manager implements it.
type Handler interface {
	HandleMessage(ctx context.Context, msg session.Message)
}

// StatusSource renders /status; the agent registry implements it.
type StatusSource interface {
	ListRunning() []registry.ProcessInfo
}

// AgentStopper cancels an agent for /stop; the runner implements it.
type AgentStopper interface {
	Stop(cardID string) error
}

// Channel is the long-polling Telegram adapter. It implements
// session.Adapter for outbound traffic.
type Channel struct {
	bot     *telego.Bot
	token   string
	userID  int64
	handler Handler
	status  StatusSource
	stopper AgentStopper

	// limiter paces outbound sends; Telegram throttles roughly one message
	// per second per chat.
	limiter *rate.Limiter

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg Config, handler Handler, status StatusSource, stopper AgentStopper) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		bot:     bot,
		token:   cfg.Token,
		userID:  cfg.UserID,
		handler: handler,
		status:  status,
		stopper: stopper,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}, nil
}

// SetHandler installs the inbound message consumer. The session manager
// needs the channel as its reply adapter, so the handler is bound after
// construction.
func (c *Channel) SetHandler(h Handler) { c.handler = h }

// Start begins long polling for updates. Each authorized message is handled
// on its own goroutine; per-chat ordering is the session manager's job.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message == nil {
					continue
				}
				msg := update.Message
				if msg.From == nil || msg.From.ID != c.userID {
					slog.Debug("dropping message from unauthorized user", "user_id", senderID(msg))
					continue
				}
				go c.dispatch(pollCtx, msg)
			}
		}
	}()
	return nil
}

// Stop cancels long polling and waits for the poll goroutine to exit so
// Telegram releases the getUpdates lock before a restart.
func (c *Channel) Stop() {
	if c.pollCancel == nil {
		return
	}
	c.pollCancel()
	select {
	case <-c.pollDone:
		slog.Info("telegram bot stopped")
	case <-time.After(10 * time.Second):
		slog.Warn("telegram polling goroutine did not exit within timeout")
	}
}

func (c *Channel) dispatch(ctx context.Context, msg *telego.Message) {
	chatID := fmt.Sprintf("%d", msg.Chat.ID)

	switch {
	case msg.Text == "/status":
		c.replyStatus(ctx, chatID)
		return
	case len(msg.Text) > 5 && msg.Text[:6] == "/stop ":
		c.replyStop(ctx, chatID, msg.Text[6:])
		return
	}

	out := session.Message{ChatID: chatID, Text: msg.Text, Caption: msg.Caption}

	if msg.Voice != nil {
		audio, err := c.fileBytes(ctx, msg.Voice.FileID)
		if err != nil {
			slog.Warn("failed to download voice note", "error", err)
			c.SendMessage(ctx, chatID, "Could not download your voice message.")
			return
		}
		out.Voice = audio
	}

	if len(msg.Photo) > 0 {
		// Telegram sends multiple sizes; the last is the largest.
		largest := msg.Photo[len(msg.Photo)-1]
		path, err := c.fileToTemp(ctx, largest.FileID)
		if err != nil {
			slog.Warn("failed to download photo", "error", err)
		} else {
			out.ImagePaths = append(out.ImagePaths, path)
		}
	}

	if c.handler == nil {
		slog.Warn("no message handler bound, dropping message", "chat_id", chatID)
		return
	}
	c.handler.HandleMessage(ctx, out)
}

func senderID(msg *telego.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}
