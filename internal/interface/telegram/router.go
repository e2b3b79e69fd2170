package telegram

import (
	"context"
	"strings"
	"sync"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/external/telegram"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/handler"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/presenter"
)

// Labels used for updates that do not carry a registered command.
const (
	LabelText    = "text"
	LabelUnknown = "unknown"
)

// HandlerFunc handles one request and returns the reply text. A returned
// error is rendered by the bot.
type HandlerFunc func(ctx context.Context, req handler.Request) (string, error)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes incoming messages to command handlers.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram messages to handlers.
type Router struct {
	mu       sync.RWMutex
	commands map[string]HandlerFunc
	text     HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{commands: make(map[string]HandlerFunc)}
}

// RegisterCommand registers fn for /name.
func (r *Router) RegisterCommand(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(name)] = fn
}

// RegisterText registers the handler for plain text messages.
func (r *Router) RegisterText(fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = fn
}

// Label names the route msg takes, for metrics and logs. Unregistered
// commands share one label.
func (r *Router) Label(msg *telegram.Message) string {
	cmd := strings.ToLower(telegram.ExtractCommand(msg))
	if cmd == "" {
		return LabelText
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.commands[cmd]; ok {
		return cmd
	}
	return LabelUnknown
}

// Route dispatches msg and returns the reply.
func (r *Router) Route(ctx context.Context, msg *telegram.Message) (string, error) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return "", nil
	}

	req := handler.Request{
		OwnerID: habit.OwnerID(msg.From.ID),
		ChatID:  msg.Chat.ID,
	}

	cmd := strings.ToLower(telegram.ExtractCommand(msg))

	r.mu.RLock()
	fn, ok := r.commands[cmd]
	text := r.text
	r.mu.RUnlock()

	switch {
	case cmd == "":
		if text == nil || strings.TrimSpace(msg.Text) == "" {
			return "", nil
		}
		req.Args = msg.Text
		return text(ctx, req)
	case !ok:
		return presenter.UnknownCommand, nil
	default:
		req.Args = telegram.ExtractCommandArgs(msg)
		return fn(ctx, req)
	}
}
