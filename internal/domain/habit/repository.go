package habit

import (
	"context"
	"time"

	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store owns persisted habits and their completion log. Every mutating method
// runs as a single transaction: on any error the stored state is unchanged.
//
// Lookups are keyed by (ID, OwnerID); a habit owned by someone else is
// reported as shared.ErrHabitNotFound.
type Store interface {
	// CreateHabit trims name and inserts a fresh habit.
	// Returns shared.ErrDuplicateHabit if the owner already has that name.
	CreateHabit(ctx context.Context, owner OwnerID, name string) (ID, error)

	// ListHabits returns the owner's habits ordered by descending streak,
	// then by name. An owner without habits gets an empty slice.
	ListHabits(ctx context.Context, owner OwnerID) ([]Habit, error)

	// DeleteHabit removes the habit and its completions.
	// Returns shared.ErrHabitNotFound if it does not exist for owner.
	DeleteHabit(ctx context.Context, owner OwnerID, id ID) error

	// CompleteHabit records a completion on today and returns the updated habit.
	// Returns shared.ErrHabitNotFound, shared.ErrAlreadyCompletedToday, or
	// shared.ErrCompletionConflict when a concurrent completion won the race.
	CompleteHabit(ctx context.Context, id ID, owner OwnerID, today timeutil.Date) (Habit, error)

	// ListCompletions returns the habit's completion log, newest first.
	// Returns shared.ErrHabitNotFound if it does not exist for owner.
	ListCompletions(ctx context.Context, owner OwnerID, id ID) ([]Completion, error)

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// Locker serializes completions of the same habit across processes. The
// store's transaction is the source of truth; a Locker only reduces the
// number of callers that lose the optimistic check.
type Locker interface {
	// Lock acquires the lock for id and returns its release function.
	// It fails fast instead of waiting when the lock is held elsewhere.
	Lock(ctx context.Context, id ID, ttl time.Duration) (unlock func(context.Context) error, err error)
}
