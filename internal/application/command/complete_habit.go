package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE HABIT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CompleteHabitCommand marks a habit done for a calendar day.
type CompleteHabitCommand struct {
	OwnerID habit.OwnerID
	HabitID habit.ID

	// Today is the caller's calendar day.
	Today timeutil.Date
}

// CompleteHabitResult contains the habit after the completion.
type CompleteHabitResult struct {
	Habit habit.Habit

	// StreakStarted is true when this completion began a new streak,
	// either the first ever or after a missed day.
	StreakStarted bool
}

// CompleteHabitHandlerConfig contains configuration for the handler.
type CompleteHabitHandlerConfig struct {
	// LockTTL bounds how long a crashed holder can block the habit.
	LockTTL time.Duration
}

// DefaultCompleteHabitHandlerConfig returns default configuration.
func DefaultCompleteHabitHandlerConfig() CompleteHabitHandlerConfig {
	return CompleteHabitHandlerConfig{
		LockTTL: 10 * time.Second,
	}
}

// CompleteHabitHandler handles the CompleteHabitCommand.
type CompleteHabitHandler struct {
	store  habit.Store
	locker habit.Locker
	config CompleteHabitHandlerConfig
	logger *slog.Logger
}

// NewCompleteHabitHandler creates a new CompleteHabitHandler. locker may be
// nil, in which case the store's transaction alone guards the update.
func NewCompleteHabitHandler(
	store habit.Store,
	locker habit.Locker,
	config CompleteHabitHandlerConfig,
	logger *slog.Logger,
) *CompleteHabitHandler {
	if config.LockTTL == 0 {
		config = DefaultCompleteHabitHandlerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CompleteHabitHandler{
		store:  store,
		locker: locker,
		config: config,
		logger: logger,
	}
}

// Handle records the completion.
func (h *CompleteHabitHandler) Handle(ctx context.Context, cmd CompleteHabitCommand) (*CompleteHabitResult, error) {
	if h.locker != nil {
		unlock, err := h.locker.Lock(ctx, cmd.HabitID, h.config.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("complete_habit: %w", err)
		}
		defer func() {
			// release with a fresh context so a cancelled request still frees the lock
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				h.logger.Warn("failed to release completion lock",
					"habit_id", int64(cmd.HabitID),
					"error", err,
				)
			}
		}()
	}

	updated, err := h.store.CompleteHabit(ctx, cmd.HabitID, cmd.OwnerID, cmd.Today)
	if err != nil {
		return nil, fmt.Errorf("complete_habit: %w", err)
	}

	return &CompleteHabitResult{
		Habit:         updated,
		StreakStarted: updated.CurrentStreak == 1,
	}, nil
}
