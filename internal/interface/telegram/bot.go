// Package telegram implements the Telegram bot interface of the habit
// tracker. It receives updates by long polling, routes them to the habit
// handlers and sends the replies back.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streakbot/habit-streak-bot/internal/application/service"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/external/telegram"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/handler"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/middleware"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/presenter"
	"github.com/streakbot/habit-streak-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// BaseURL overrides the Bot API endpoint.
	BaseURL string

	// PollingTimeout is the long polling timeout.
	PollingTimeout time.Duration

	// RequestTimeout bounds every Bot API call. It must exceed PollingTimeout.
	RequestTimeout time.Duration

	// DialogTTL is how long the bot waits for an answer to a prompt.
	DialogTTL time.Duration

	// HistoryLimit caps the entries shown by /history.
	HistoryLimit int

	// UpdateTimeout bounds the work done for one update, reply included.
	// Zero disables the limit.
	UpdateTimeout time.Duration

	// Debug enables debug logging of Bot API calls.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:          token,
		PollingTimeout: 30 * time.Second,
		RequestTimeout: 60 * time.Second,
		DialogTTL:      handler.DefaultDialogTTL,
		HistoryLimit:   10,
		UpdateTimeout:  10 * time.Second,
		Logger:         slog.Default(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Metrics receives per-update counters.
type Metrics interface {
	Update(command string)
	Retry(op string)
}

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	Service handler.HabitService

	// Metrics is optional.
	Metrics Metrics
}

type noopMetrics struct{}

func (noopMetrics) Update(string) {}
func (noopMetrics) Retry(string)  {}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the main Telegram bot controller.
type Bot struct {
	config   BotConfig
	client   *telegram.Client
	router   *Router
	recovery *middleware.Recovery
	metrics  Metrics
	logger   *slog.Logger

	runningMu sync.Mutex
	running   bool
}

// NewBot creates a new Telegram bot with all dependencies.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if config.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if deps.Service == nil {
		return nil, errors.New("habit service is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}

	log := config.Logger.With(logger.Component("telegram_bot"))

	clientConfig := telegram.DefaultClientConfig(config.Token)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.PollingTimeout > 0 {
		clientConfig.PollTimeout = config.PollingTimeout
	}
	if config.RequestTimeout > 0 {
		clientConfig.Timeout = config.RequestTimeout
	}
	clientConfig.Logger = config.Logger
	clientConfig.Debug = config.Debug

	metrics := deps.Metrics
	dialogs := handler.NewDialogs(config.DialogTTL)
	habits := handler.NewHabitHandler(deps.Service, dialogs, handler.Config{
		HistoryLimit: config.HistoryLimit,
		OnConflictRetry: func(attempt int, err error, delay time.Duration) {
			metrics.Retry(service.OpComplete)
			log.Debug("retrying completion", "attempt", attempt, "delay", delay, "error", err)
		},
	})

	// Any command other than /cancel abandons an open prompt.
	abandon := func(fn HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req handler.Request) (string, error) {
			dialogs.Take(req.ChatID, req.OwnerID)
			return fn(ctx, req)
		}
	}

	router := NewRouter()
	router.RegisterCommand("start", abandon(habits.Start))
	router.RegisterCommand("help", abandon(habits.Start))
	router.RegisterCommand("add", abandon(habits.Add))
	router.RegisterCommand("list", abandon(habits.List))
	router.RegisterCommand("today", abandon(habits.Today))
	router.RegisterCommand("done", abandon(habits.Done))
	router.RegisterCommand("delete", abandon(habits.Delete))
	router.RegisterCommand("history", abandon(habits.History))
	router.RegisterCommand("cancel", habits.Cancel)
	router.RegisterText(habits.Text)

	return &Bot{
		config:   config,
		client:   telegram.NewClient(clientConfig),
		router:   router,
		recovery: middleware.NewRecovery(middleware.DefaultRecoveryConfig()),
		metrics:  metrics,
		logger:   log,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	defer func() {
		b.runningMu.Lock()
		b.running = false
		b.runningMu.Unlock()
	}()

	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("bot verified", "id", me.ID, "username", me.Username)

	// getUpdates is rejected while a webhook is set.
	if err := b.client.DeleteWebhook(ctx, false); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	return b.client.StartPolling(ctx, b.HandleUpdate)
}

// IsRunning returns whether the bot is currently polling.
func (b *Bot) IsRunning() bool {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	return b.running
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single Telegram update and sends the reply.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}

	if b.config.UpdateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.UpdateTimeout)
		defer cancel()
	}

	start := time.Now()
	owner := msg.From.ID
	label := b.router.Label(msg)

	log := b.logger.With(
		logger.RequestID(uuid.NewString()),
		slog.Int64("update_id", update.UpdateID),
		logger.OwnerID(owner),
		slog.String("command", label),
	)
	ctx = logger.WithContext(ctx, log)

	b.metrics.Update(label)

	var reply string
	err := b.recovery.Run(ctx, owner, label, func() error {
		var err error
		reply, err = b.router.Route(ctx, msg)
		return err
	})
	if err != nil {
		reply = presenter.Error(err)

		kind := shared.KindOf(err)
		level := slog.LevelDebug
		if kind == shared.KindStorage || kind == shared.KindUnknown {
			level = slog.LevelError
		}
		log.LogAttrs(ctx, level, "command failed", slog.String("kind", kind.String()), logger.Err(err))
	}

	if reply == "" {
		return nil
	}

	if _, err := b.client.SendText(ctx, msg.Chat.ID, reply); err != nil {
		if telegram.IsUserBlocked(err) {
			log.Warn("user blocked the bot")
			return nil
		}
		return fmt.Errorf("send reply: %w", err)
	}

	log.Debug("update handled", logger.Latency(time.Since(start)))
	return nil
}
