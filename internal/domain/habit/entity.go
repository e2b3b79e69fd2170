// Package habit contains the habit aggregate and the streak-accounting rules.
// Storage adapters apply these rules inside their own transactions; nothing in
// this package touches I/O.
package habit

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// Name length bounds, in characters, after trimming.
const (
	MinNameLength = 5
	MaxNameLength = 20
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID identifies a habit. Assigned by the store at creation.
type ID int64

// OwnerID is the opaque numeric identifier of the owning user, supplied by the
// transport layer (the Telegram user id).
type OwnerID int64

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Habit is a named, per-user recurring activity tracked for daily completion.
type Habit struct {
	ID        ID
	OwnerID   OwnerID
	Name      string
	CreatedAt time.Time

	// LastCompleted is nil until the first completion.
	LastCompleted *timeutil.Date

	// CurrentStreak counts consecutive days ending at LastCompleted.
	// It is >= 1 whenever LastCompleted is set and 0 otherwise.
	CurrentStreak int

	// TotalCompletions only ever grows, by exactly one per completion.
	TotalCompletions int64
}

// CompletedOn reports whether the habit was completed on day.
func (h Habit) CompletedOn(day timeutil.Date) bool {
	return h.LastCompleted != nil && h.LastCompleted.Equal(day)
}

// Completion is one row of the append-only completion log.
type Completion struct {
	ID          int64
	HabitID     ID
	CompletedOn timeutil.Date
}

// ══════════════════════════════════════════════════════════════════════════════
// NAME RULES
// ══════════════════════════════════════════════════════════════════════════════

// NormalizeName trims surrounding whitespace.
func NormalizeName(raw string) string {
	return strings.TrimSpace(raw)
}

// ValidateName checks the trimmed length of raw. It returns
// shared.ErrNameTooShort or shared.ErrNameTooLong.
func ValidateName(raw string) error {
	n := utf8.RuneCountInString(NormalizeName(raw))
	switch {
	case n < MinNameLength:
		return shared.ErrNameTooShort
	case n > MaxNameLength:
		return shared.ErrNameTooLong
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK RULES
// ══════════════════════════════════════════════════════════════════════════════

// Transition is the state change produced by completing a habit on a day.
type Transition struct {
	Day           timeutil.Date
	PreviousDay   *timeutil.Date
	PreviousCount int
	NewStreak     int
}

// PlanCompletion decides how completing h on today changes its streak.
//
// A completion on the day after LastCompleted extends the streak; any other
// gap, including a clock that moved backwards, restarts it at 1. A second
// completion on the same day is rejected with shared.ErrAlreadyCompletedToday.
func PlanCompletion(h Habit, today timeutil.Date) (Transition, error) {
	if h.CompletedOn(today) {
		return Transition{}, shared.ErrAlreadyCompletedToday
	}

	t := Transition{
		Day:           today,
		PreviousDay:   h.LastCompleted,
		PreviousCount: h.CurrentStreak,
		NewStreak:     1,
	}
	if h.LastCompleted != nil && today.DaysSince(*h.LastCompleted) == 1 {
		t.NewStreak = h.CurrentStreak + 1
	}
	return t, nil
}

// Apply returns h with the transition written to its summary fields.
func (t Transition) Apply(h Habit) Habit {
	day := t.Day
	h.LastCompleted = &day
	h.CurrentStreak = t.NewStreak
	h.TotalCompletions++
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING & FILTERS
// ══════════════════════════════════════════════════════════════════════════════

// SortForDisplay orders habits by descending streak, ties broken by name.
// Stores produce this order in SQL; this is the in-memory equivalent.
func SortForDisplay(habits []Habit) {
	sort.SliceStable(habits, func(i, j int) bool {
		if habits[i].CurrentStreak != habits[j].CurrentStreak {
			return habits[i].CurrentStreak > habits[j].CurrentStreak
		}
		return habits[i].Name < habits[j].Name
	})
}

// CompletableOn keeps the habits not yet completed on day, preserving order.
func CompletableOn(habits []Habit, day timeutil.Date) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		if !h.CompletedOn(day) {
			out = append(out, h)
		}
	}
	return out
}
