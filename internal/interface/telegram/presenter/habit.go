// Package presenter formats habits and service outcomes as plain-text
// Telegram replies.
package presenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/streakbot/habit-streak-bot/internal/application/query"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

const (
	Welcome = "Hi! I keep track of your daily habits and streaks.\n\n" +
		"/add <name> - add a habit\n" +
		"/list - all your habits\n" +
		"/today - habits left for today\n" +
		"/done <id> - mark a habit as done today\n" +
		"/history <id> - recent completions\n" +
		"/delete <id> - delete a habit\n" +
		"/cancel - cancel the current action"

	AskHabitName     = "Send the name of the new habit (5-20 characters), or /cancel."
	NoHabits         = "You have no habits yet. Add one with /add <name>."
	NothingLeftToday = "All habits are done for today. Well done!"
	Cancelled        = "Action cancelled."
	NothingToCancel  = "Nothing to cancel."
	DeleteAborted    = "Deletion cancelled."
	UnknownCommand   = "Unknown command. Send /start to see what I can do."
	UseCommands      = "Send /start to see what I can do."

	errTooShort         = "The habit name is too short, use at least 5 characters."
	errTooLong          = "The habit name is too long, use at most 20 characters."
	errDuplicate        = "You already have a habit with this name."
	errNotFound         = "Habit not found. Check the ID with /list."
	errAlreadyCompleted = "You are ahead of schedule, this habit is already done today!"
	errConflict         = "This habit is being updated right now, please try again."
	errInternal         = "Something went wrong, please try again later."
)

// Usage returns the usage hint of a command taking a habit id.
func Usage(command string) string {
	return fmt.Sprintf("Usage: /%s <id>. Find the ID with /list.", command)
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// HabitAdded confirms a new habit.
func HabitAdded(name string, id habit.ID) string {
	return fmt.Sprintf("Habit %q added (ID: %d).", name, id)
}

// HabitDeleted confirms a deletion.
func HabitDeleted(name string) string {
	return fmt.Sprintf("Habit %q and its history were deleted.", name)
}

// ConfirmDelete asks the user to confirm deleting h.
func ConfirmDelete(h habit.Habit) string {
	return fmt.Sprintf("Delete %q (ID: %d) with all %d completions? Reply \"yes\" to confirm or /cancel.",
		h.Name, h.ID, h.TotalCompletions)
}

// HabitList renders every habit with its statistics.
func HabitList(habits []habit.Habit) string {
	if len(habits) == 0 {
		return NoHabits
	}

	var sb strings.Builder
	sb.WriteString("Your habits:\n")
	for _, h := range habits {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %s (ID: %d)\n", Badge(h.CurrentStreak), h.Name, h.ID)
		fmt.Fprintf(&sb, "  streak: %s\n", days(h.CurrentStreak))
		fmt.Fprintf(&sb, "  total: %d\n", h.TotalCompletions)
		fmt.Fprintf(&sb, "  last done: %s\n", LastCompleted(h.LastCompleted))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// TodayList renders the habits still open today.
func TodayList(habits []habit.Habit) string {
	if len(habits) == 0 {
		return NothingLeftToday
	}

	var sb strings.Builder
	sb.WriteString("Left for today:\n")
	for _, h := range habits {
		fmt.Fprintf(&sb, "%d. %s (streak %d)\n", h.ID, h.Name, h.CurrentStreak)
	}
	sb.WriteString("\nMark one with /done <id>.")
	return sb.String()
}

// Completed congratulates on a completion.
func Completed(h habit.Habit) string {
	if h.CurrentStreak == 1 && h.TotalCompletions > 1 {
		return fmt.Sprintf("%q done! A new streak starts today.", h.Name)
	}
	return fmt.Sprintf("%q done! You've kept it up %s in a row.", h.Name, days(h.CurrentStreak))
}

// History renders the completion log of one habit.
func History(id habit.ID, res *query.HabitHistoryResult) string {
	if res == nil || res.Total == 0 {
		return fmt.Sprintf("Habit %d has no completions yet.", id)
	}

	var sb strings.Builder
	if len(res.Completions) < res.Total {
		fmt.Fprintf(&sb, "Last %d of %d completions of habit %d:\n", len(res.Completions), res.Total, id)
	} else {
		fmt.Fprintf(&sb, "Completions of habit %d:\n", id)
	}
	for _, c := range res.Completions {
		sb.WriteString(c.CompletedOn.String())
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Badge marks a streak length.
func Badge(streak int) string {
	switch {
	case streak >= 30:
		return "🔥"
	case streak >= 7:
		return "🚀"
	case streak >= 3:
		return "⭐"
	case streak > 0:
		return "🆕"
	default:
		return "📝"
	}
}

// LastCompleted formats a nullable completion date.
func LastCompleted(d *timeutil.Date) string {
	if d == nil {
		return "never"
	}
	return d.String()
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Error maps a service error to the reply shown to the user.
func Error(err error) string {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		if errors.Is(err, shared.ErrNameTooLong) {
			return errTooLong
		}
		return errTooShort
	case shared.KindDuplicate:
		return errDuplicate
	case shared.KindNotFound:
		return errNotFound
	case shared.KindAlreadyCompleted:
		return errAlreadyCompleted
	case shared.KindConflict:
		return errConflict
	default:
		return errInternal
	}
}
