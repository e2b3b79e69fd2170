// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST HABITS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListHabitsQuery contains the parameters for listing an owner's habits.
type ListHabitsQuery struct {
	OwnerID habit.OwnerID

	// CompletableOn, when set, drops habits already completed on that day.
	CompletableOn *timeutil.Date
}

// ListHabitsResult contains the habits in display order.
type ListHabitsResult struct {
	Habits []habit.Habit
}

// ListHabitsHandler handles the ListHabitsQuery.
type ListHabitsHandler struct {
	store habit.Store
}

// NewListHabitsHandler creates a new ListHabitsHandler.
func NewListHabitsHandler(store habit.Store) *ListHabitsHandler {
	return &ListHabitsHandler{store: store}
}

// Handle returns the owner's habits, highest streak first.
func (h *ListHabitsHandler) Handle(ctx context.Context, q ListHabitsQuery) (*ListHabitsResult, error) {
	habits, err := h.store.ListHabits(ctx, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list_habits: %w", err)
	}

	// Stores already order in SQL; re-sorting keeps any Store honest.
	habit.SortForDisplay(habits)

	if q.CompletableOn != nil {
		habits = habit.CompletableOn(habits, *q.CompletableOn)
	}

	return &ListHabitsResult{Habits: habits}, nil
}
