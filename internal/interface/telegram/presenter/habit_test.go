package presenter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streakbot/habit-streak-bot/internal/application/query"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

func TestError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{shared.ErrNameTooShort, errTooShort},
		{fmt.Errorf("add_habit: %w", shared.ErrNameTooLong), errTooLong},
		{shared.ErrDuplicateHabit, errDuplicate},
		{shared.ErrHabitNotFound, errNotFound},
		{shared.ErrAlreadyCompletedToday, errAlreadyCompleted},
		{shared.ErrCompletionConflict, errConflict},
		{shared.StorageError("ListHabits", errors.New("disk full")), errInternal},
		{errors.New("boom"), errInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Error(tt.err), tt.err.Error())
	}
}

func TestHabitList(t *testing.T) {
	day := timeutil.NewDate(2025, 3, 1)
	out := HabitList([]habit.Habit{
		{ID: 2, Name: "Read a book", CurrentStreak: 7, TotalCompletions: 12, LastCompleted: &day},
		{ID: 1, Name: "Stretching"},
	})

	assert.Equal(t, "Your habits:\n"+
		"\n🚀 Read a book (ID: 2)\n  streak: 7 days\n  total: 12\n  last done: 2025-03-01\n"+
		"\n📝 Stretching (ID: 1)\n  streak: 0 days\n  total: 0\n  last done: never",
		out)

	assert.Equal(t, NoHabits, HabitList(nil))
}

func TestTodayList(t *testing.T) {
	out := TodayList([]habit.Habit{{ID: 3, Name: "Drink water", CurrentStreak: 1}})
	assert.Equal(t, "Left for today:\n3. Drink water (streak 1)\n\nMark one with /done <id>.", out)
	assert.Equal(t, NothingLeftToday, TodayList(nil))
}

func TestCompleted(t *testing.T) {
	assert.Equal(t, `"Run 5k" done! You've kept it up 1 day in a row.`,
		Completed(habit.Habit{Name: "Run 5k", CurrentStreak: 1, TotalCompletions: 1}))
	assert.Equal(t, `"Run 5k" done! A new streak starts today.`,
		Completed(habit.Habit{Name: "Run 5k", CurrentStreak: 1, TotalCompletions: 4}))
	assert.Equal(t, `"Run 5k" done! You've kept it up 4 days in a row.`,
		Completed(habit.Habit{Name: "Run 5k", CurrentStreak: 4, TotalCompletions: 4}))
}

func TestHistory(t *testing.T) {
	assert.Equal(t, "Habit 5 has no completions yet.", History(5, &query.HabitHistoryResult{}))

	res := &query.HabitHistoryResult{
		Completions: []habit.Completion{
			{HabitID: 5, CompletedOn: timeutil.NewDate(2025, 3, 3)},
			{HabitID: 5, CompletedOn: timeutil.NewDate(2025, 3, 2)},
		},
		Total: 9,
	}
	assert.Equal(t, "Last 2 of 9 completions of habit 5:\n2025-03-03\n2025-03-02", History(5, res))
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "📝", Badge(0))
	assert.Equal(t, "🆕", Badge(2))
	assert.Equal(t, "⭐", Badge(3))
	assert.Equal(t, "🚀", Badge(29))
	assert.Equal(t, "🔥", Badge(30))
}
