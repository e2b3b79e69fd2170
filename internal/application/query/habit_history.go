package query

import (
	"context"
	"fmt"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultHistoryLimit caps the entries returned when Limit is zero.
const DefaultHistoryLimit = 30

// HabitHistoryQuery asks for the completion log of one habit.
type HabitHistoryQuery struct {
	OwnerID habit.OwnerID
	HabitID habit.ID

	// Limit caps the number of entries; zero means DefaultHistoryLimit,
	// a negative value means no cap.
	Limit int
}

// HabitHistoryResult contains the newest completions first.
type HabitHistoryResult struct {
	Completions []habit.Completion

	// Total is the number of completions before Limit was applied.
	Total int
}

// HabitHistoryHandler handles the HabitHistoryQuery.
type HabitHistoryHandler struct {
	store habit.Store
}

// NewHabitHistoryHandler creates a new HabitHistoryHandler.
func NewHabitHistoryHandler(store habit.Store) *HabitHistoryHandler {
	return &HabitHistoryHandler{store: store}
}

// Handle returns the completion log.
func (h *HabitHistoryHandler) Handle(ctx context.Context, q HabitHistoryQuery) (*HabitHistoryResult, error) {
	completions, err := h.store.ListCompletions(ctx, q.OwnerID, q.HabitID)
	if err != nil {
		return nil, fmt.Errorf("habit_history: %w", err)
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	result := &HabitHistoryResult{Completions: completions, Total: len(completions)}
	if limit > 0 && len(completions) > limit {
		result.Completions = completions[:limit]
	}
	return result, nil
}
