package command

import (
	"context"
	"fmt"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE HABIT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// DeleteHabitCommand identifies the habit to remove.
type DeleteHabitCommand struct {
	OwnerID habit.OwnerID
	HabitID habit.ID
}

// DeleteHabitHandler handles the DeleteHabitCommand.
type DeleteHabitHandler struct {
	store habit.Store
}

// NewDeleteHabitHandler creates a new DeleteHabitHandler.
func NewDeleteHabitHandler(store habit.Store) *DeleteHabitHandler {
	return &DeleteHabitHandler{store: store}
}

// Handle deletes the habit together with its completion log.
func (h *DeleteHabitHandler) Handle(ctx context.Context, cmd DeleteHabitCommand) error {
	if err := h.store.DeleteHabit(ctx, cmd.OwnerID, cmd.HabitID); err != nil {
		return fmt.Errorf("delete_habit: %w", err)
	}
	return nil
}
