// Package middleware contains wrappers applied around every Telegram update.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/streakbot/habit-streak-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// Keeps the polling loop alive when a handler panics.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace captures the stack of the panicking goroutine.
	EnableStackTrace bool

	// MaxPanicsPerMinute caps how many panics are logged per minute.
	// Panics above the cap are still recovered.
	MaxPanicsPerMinute int

	// OnPanic is called for every recovered panic.
	OnPanic func(ctx context.Context, info *PanicInfo)
}

// DefaultRecoveryConfig returns sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:   true,
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Err        error
	Command    string
	OwnerID    int64
	StackTrace string
	Timestamp  time.Time
}

// Recovery recovers panics raised while handling an update.
type Recovery struct {
	config  RecoveryConfig
	limiter *panicRateLimiter
}

// NewRecovery creates a new recovery middleware.
func NewRecovery(config RecoveryConfig) *Recovery {
	return &Recovery{
		config:  config,
		limiter: newPanicRateLimiter(config.MaxPanicsPerMinute),
	}
}

// Run calls fn and converts a panic into a returned error. The logger is
// taken from ctx.
func (m *Recovery) Run(ctx context.Context, ownerID int64, command string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		info := &PanicInfo{
			Err:       toError(r),
			Command:   command,
			OwnerID:   ownerID,
			Timestamp: time.Now(),
		}
		if m.config.EnableStackTrace {
			info.StackTrace = string(debug.Stack())
		}

		if m.limiter.allow() {
			logger.FromContext(ctx).LogAttrs(ctx, slog.LevelError, "panic recovered",
				slog.String("command", command),
				logger.OwnerID(ownerID),
				logger.Err(info.Err),
				slog.String("stack", info.StackTrace),
			)
		}
		if m.config.OnPanic != nil {
			m.config.OnPanic(ctx, info)
		}

		err = info.Err
	}()

	return fn()
}

func toError(v any) error {
	switch v := v.(type) {
	case error:
		return fmt.Errorf("panic: %w", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PANIC RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type panicRateLimiter struct {
	mu        sync.Mutex
	count     int
	maxPerMin int
	window    time.Time
}

func newPanicRateLimiter(maxPerMin int) *panicRateLimiter {
	return &panicRateLimiter{
		maxPerMin: maxPerMin,
		window:    time.Now(),
	}
}

func (l *panicRateLimiter) allow() bool {
	if l.maxPerMin <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.window) >= time.Minute {
		l.window = now
		l.count = 0
	}

	if l.count >= l.maxPerMin {
		return false
	}
	l.count++
	return true
}
