// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD HABIT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AddHabitCommand contains the data to register a new habit.
type AddHabitCommand struct {
	// OwnerID is the owning user.
	OwnerID habit.OwnerID

	// Name is the raw name as typed by the user; it is trimmed before use.
	Name string
}

// Validate validates the command.
func (c AddHabitCommand) Validate() error {
	return habit.ValidateName(c.Name)
}

// AddHabitResult contains the result of adding a habit.
type AddHabitResult struct {
	HabitID habit.ID
	Name    string
}

// AddHabitHandler handles the AddHabitCommand.
type AddHabitHandler struct {
	store habit.Store
}

// NewAddHabitHandler creates a new AddHabitHandler.
func NewAddHabitHandler(store habit.Store) *AddHabitHandler {
	return &AddHabitHandler{store: store}
}

// Handle validates the name and creates the habit.
// Validation failures are returned unwrapped so callers can match the sentinel.
func (h *AddHabitHandler) Handle(ctx context.Context, cmd AddHabitCommand) (*AddHabitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	name := habit.NormalizeName(cmd.Name)
	id, err := h.store.CreateHabit(ctx, cmd.OwnerID, name)
	if err != nil {
		return nil, fmt.Errorf("add_habit: %w", err)
	}

	return &AddHabitResult{HabitID: id, Name: name}, nil
}
