// Package handler contains the Telegram command handlers.
// Each handler follows the pattern: parse arguments, call the habit service,
// format the reply.
package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/streakbot/habit-streak-bot/internal/application/query"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/presenter"
	"github.com/streakbot/habit-streak-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HabitService is the application API used by the handlers.
type HabitService interface {
	AddHabit(ctx context.Context, owner habit.OwnerID, rawName string) (habit.ID, error)
	ListForDisplay(ctx context.Context, owner habit.OwnerID) ([]habit.Habit, error)
	ListCompletableToday(ctx context.Context, owner habit.OwnerID) ([]habit.Habit, error)
	DeleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) error
	CompleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) (habit.Habit, error)
	History(ctx context.Context, owner habit.OwnerID, id habit.ID, limit int) (*query.HabitHistoryResult, error)
}

// Request is one command or text message addressed to a handler.
type Request struct {
	OwnerID habit.OwnerID
	ChatID  int64

	// Args is the text after the command, or the whole message for plain
	// text input.
	Args string
}

// Config contains handler settings.
type Config struct {
	// HistoryLimit caps the entries shown by /history.
	HistoryLimit int

	// OnConflictRetry is called before a lost completion race is retried.
	OnConflictRetry func(attempt int, err error, delay time.Duration)
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// HabitHandler implements the habit commands.
type HabitHandler struct {
	service      HabitService
	dialogs      *Dialogs
	retrier      *retry.Retrier
	historyLimit int
}

// NewHabitHandler creates a HabitHandler.
func NewHabitHandler(service HabitService, dialogs *Dialogs, cfg Config) *HabitHandler {
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 10
	}

	return &HabitHandler{
		service:      service,
		dialogs:      dialogs,
		retrier:      retry.ConflictRetrier(shared.IsRetryable, cfg.OnConflictRetry),
		historyLimit: cfg.HistoryLimit,
	}
}

// Start handles /start.
func (h *HabitHandler) Start(_ context.Context, _ Request) (string, error) {
	return presenter.Welcome, nil
}

// Add handles /add. Without a name it asks for one.
func (h *HabitHandler) Add(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Args) == "" {
		h.dialogs.Open(req.ChatID, req.OwnerID, Dialog{Step: StepAwaitName})
		return presenter.AskHabitName, nil
	}
	return h.addHabit(ctx, req.OwnerID, req.Args)
}

// List handles /list.
func (h *HabitHandler) List(ctx context.Context, req Request) (string, error) {
	habits, err := h.service.ListForDisplay(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}
	return presenter.HabitList(habits), nil
}

// Today handles /today.
func (h *HabitHandler) Today(ctx context.Context, req Request) (string, error) {
	open, err := h.service.ListCompletableToday(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}
	if len(open) > 0 {
		return presenter.TodayList(open), nil
	}

	all, err := h.service.ListForDisplay(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return presenter.NoHabits, nil
	}
	return presenter.NothingLeftToday, nil
}

// Done handles /done <id>. Without an id it lists what is left for today.
func (h *HabitHandler) Done(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Args) == "" {
		return h.Today(ctx, req)
	}

	id, ok := parseID(req.Args)
	if !ok {
		return presenter.Usage("done"), nil
	}

	var completed habit.Habit
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		completed, err = h.service.CompleteHabit(ctx, req.OwnerID, id)
		return err
	})
	if err != nil {
		return "", err
	}
	return presenter.Completed(completed), nil
}

// Delete handles /delete <id> by asking for confirmation.
func (h *HabitHandler) Delete(ctx context.Context, req Request) (string, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return presenter.Usage("delete"), nil
	}

	habits, err := h.service.ListForDisplay(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}

	for _, hb := range habits {
		if hb.ID == id {
			h.dialogs.Open(req.ChatID, req.OwnerID, Dialog{
				Step:      StepConfirmDelete,
				HabitID:   hb.ID,
				HabitName: hb.Name,
			})
			return presenter.ConfirmDelete(hb), nil
		}
	}
	return "", shared.ErrHabitNotFound
}

// History handles /history <id>.
func (h *HabitHandler) History(ctx context.Context, req Request) (string, error) {
	id, ok := parseID(req.Args)
	if !ok {
		return presenter.Usage("history"), nil
	}

	res, err := h.service.History(ctx, req.OwnerID, id, h.historyLimit)
	if err != nil {
		return "", err
	}
	return presenter.History(id, res), nil
}

// Cancel handles /cancel.
func (h *HabitHandler) Cancel(_ context.Context, req Request) (string, error) {
	if _, ok := h.dialogs.Take(req.ChatID, req.OwnerID); ok {
		return presenter.Cancelled, nil
	}
	return presenter.NothingToCancel, nil
}

// Text handles a plain message, which answers the open dialog if any.
func (h *HabitHandler) Text(ctx context.Context, req Request) (string, error) {
	d, ok := h.dialogs.Take(req.ChatID, req.OwnerID)
	if !ok {
		return presenter.UseCommands, nil
	}

	switch d.Step {
	case StepAwaitName:
		return h.addHabit(ctx, req.OwnerID, req.Args)
	case StepConfirmDelete:
		if !strings.EqualFold(strings.TrimSpace(req.Args), "yes") {
			return presenter.DeleteAborted, nil
		}
		if err := h.service.DeleteHabit(ctx, req.OwnerID, d.HabitID); err != nil {
			return "", err
		}
		return presenter.HabitDeleted(d.HabitName), nil
	default:
		return presenter.UseCommands, nil
	}
}

func (h *HabitHandler) addHabit(ctx context.Context, owner habit.OwnerID, rawName string) (string, error) {
	id, err := h.service.AddHabit(ctx, owner, rawName)
	if err != nil {
		return "", err
	}
	return presenter.HabitAdded(habit.NormalizeName(rawName), id), nil
}

// parseID accepts "3" and "#3".
func parseID(args string) (habit.ID, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(args), "#")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return habit.ID(n), true
}
