package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

const (
	alice habit.OwnerID = 1001
	bob   habit.OwnerID = 2002
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "habits.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateHabit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateHabit(ctx, alice, "  water  ")
	require.NoError(t, err)
	assert.NotZero(t, id)

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	require.Len(t, habits, 1)

	h := habits[0]
	assert.Equal(t, id, h.ID)
	assert.Equal(t, alice, h.OwnerID)
	assert.Equal(t, "water", h.Name)
	assert.Zero(t, h.CurrentStreak)
	assert.Zero(t, h.TotalCompletions)
	assert.Nil(t, h.LastCompleted)
	assert.False(t, h.CreatedAt.IsZero())
}

func TestStore_CreateHabit_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateHabit(ctx, alice, "water")
	require.NoError(t, err)

	_, err = s.CreateHabit(ctx, alice, " water ")
	assert.ErrorIs(t, err, shared.ErrDuplicateHabit)
	assert.Equal(t, shared.KindDuplicate, shared.KindOf(err))

	// names are scoped per owner
	_, err = s.CreateHabit(ctx, bob, "water")
	assert.NoError(t, err)

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, habits, 1)
}

func TestStore_ListHabits_EmptyOwner(t *testing.T) {
	s := newTestStore(t)

	habits, err := s.ListHabits(context.Background(), alice)
	require.NoError(t, err)
	assert.NotNil(t, habits)
	assert.Empty(t, habits)
}

func TestStore_ListHabits_Order(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 3, 10)

	ids := map[string]habit.ID{}
	for _, name := range []string{"bravo", "alpha", "charlie", "delta"} {
		id, err := s.CreateHabit(ctx, alice, name)
		require.NoError(t, err)
		ids[name] = id
	}

	// alpha and charlie reach 2, bravo 1, delta stays 0
	for _, name := range []string{"alpha", "charlie"} {
		_, err := s.CompleteHabit(ctx, ids[name], alice, day.AddDays(-1))
		require.NoError(t, err)
	}
	for _, name := range []string{"alpha", "charlie", "bravo"} {
		_, err := s.CompleteHabit(ctx, ids[name], alice, day)
		require.NoError(t, err)
	}

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)

	names := make([]string, len(habits))
	for i, h := range habits {
		names[i] = h.Name
	}
	assert.Equal(t, []string{"alpha", "charlie", "bravo", "delta"}, names)
}

func TestStore_CompleteHabit_Streaks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 12, 30)

	id, err := s.CreateHabit(ctx, alice, "stretch")
	require.NoError(t, err)

	steps := []struct {
		day        timeutil.Date
		wantStreak int
		wantTotal  int64
	}{
		{day, 1, 1},
		{day.AddDays(1), 2, 2},
		{day.AddDays(2), 3, 3}, // crosses the year boundary
		{day.AddDays(4), 1, 4}, // one missed day
		{day.AddDays(5), 2, 5},
		{day.AddDays(3), 1, 6}, // clock moved backwards
	}

	for _, step := range steps {
		h, err := s.CompleteHabit(ctx, id, alice, step.day)
		require.NoError(t, err, "completing on %s", step.day)
		assert.Equal(t, step.wantStreak, h.CurrentStreak, "streak on %s", step.day)
		assert.Equal(t, step.wantTotal, h.TotalCompletions, "total on %s", step.day)
		require.NotNil(t, h.LastCompleted)
		assert.Equal(t, step.day, *h.LastCompleted)
	}
}

func TestStore_CompleteHabit_SameDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "journal")
	require.NoError(t, err)

	_, err = s.CompleteHabit(ctx, id, alice, day)
	require.NoError(t, err)

	_, err = s.CompleteHabit(ctx, id, alice, day)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompletedToday)
	assert.Equal(t, shared.KindAlreadyCompleted, shared.KindOf(err))

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, 1, habits[0].CurrentStreak)
	assert.Equal(t, int64(1), habits[0].TotalCompletions)

	log, err := s.ListCompletions(ctx, alice, id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestStore_CompleteHabit_BackwardsOntoLoggedDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "walk")
	require.NoError(t, err)

	_, err = s.CompleteHabit(ctx, id, alice, day)
	require.NoError(t, err)
	_, err = s.CompleteHabit(ctx, id, alice, day.AddDays(2))
	require.NoError(t, err)

	// day is already in the completion log even though last_completed moved on
	_, err = s.CompleteHabit(ctx, id, alice, day)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompletedToday)
	assert.Equal(t, shared.KindAlreadyCompleted, shared.KindOf(err))

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	h := habits[0]
	assert.Equal(t, 1, h.CurrentStreak)
	assert.Equal(t, int64(2), h.TotalCompletions)
	require.NotNil(t, h.LastCompleted)
	assert.Equal(t, day.AddDays(2), *h.LastCompleted)

	log, err := s.ListCompletions(ctx, alice, id)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestStore_CompleteHabit_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "journal")
	require.NoError(t, err)

	_, err = s.CompleteHabit(ctx, id+100, alice, day)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	// another owner's habit is indistinguishable from a missing one
	_, err = s.CompleteHabit(ctx, id, bob, day)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, habits[0].LastCompleted)
}

func TestStore_CompleteHabit_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "pushups")
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompleteHabit(ctx, id, alice, day)

			mu.Lock()
			defer mu.Unlock()
			switch shared.KindOf(err) {
			case shared.KindUnknown:
				if err == nil {
					successes++
				}
			case shared.KindAlreadyCompleted, shared.KindConflict:
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, rejected)

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, habits[0].CurrentStreak)
	assert.Equal(t, int64(1), habits[0].TotalCompletions)

	log, err := s.ListCompletions(ctx, alice, id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestStore_DeleteHabit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "meditate")
	require.NoError(t, err)
	_, err = s.CompleteHabit(ctx, id, alice, day)
	require.NoError(t, err)

	t.Run("foreign owner", func(t *testing.T) {
		err := s.DeleteHabit(ctx, bob, id)
		assert.ErrorIs(t, err, shared.ErrHabitNotFound)
	})

	t.Run("owner", func(t *testing.T) {
		require.NoError(t, s.DeleteHabit(ctx, alice, id))

		var n int
		err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM completions WHERE habit_id = ?`, int64(id)).Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("second delete", func(t *testing.T) {
		err := s.DeleteHabit(ctx, alice, id)
		assert.ErrorIs(t, err, shared.ErrHabitNotFound)
		assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	})

	t.Run("name can be reused", func(t *testing.T) {
		_, err := s.CreateHabit(ctx, alice, "meditate")
		assert.NoError(t, err)
	})
}

func TestStore_ListCompletions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "reading")
	require.NoError(t, err)

	for _, d := range []timeutil.Date{day, day.AddDays(1), day.AddDays(3)} {
		_, err := s.CompleteHabit(ctx, id, alice, d)
		require.NoError(t, err)
	}

	log, err := s.ListCompletions(ctx, alice, id)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, day.AddDays(3), log[0].CompletedOn)
	assert.Equal(t, day, log[2].CompletedOn)
	assert.Equal(t, id, log[0].HabitID)

	_, err = s.ListCompletions(ctx, bob, id)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}

func TestStore_ClosedReportsStorageKind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := s.CreateHabit(ctx, alice, "floss")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.CreateHabit(ctx, alice, "brush")
	assert.Equal(t, shared.KindStorage, shared.KindOf(err), "create: %v", err)

	err = s.DeleteHabit(ctx, alice, id)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err), "delete: %v", err)

	_, err = s.CompleteHabit(ctx, id, alice, day)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err), "complete: %v", err)

	_, err = s.ListHabits(ctx, alice)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err), "list: %v", err)

	_, err = s.ListCompletions(ctx, alice, id)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err), "history: %v", err)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "nested", "habits.db"))

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = s.CreateHabit(ctx, alice, "water")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	habits, err := s.ListHabits(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, habits, 1)
}

func TestMigrator_StatusAndRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := NewMigrator(s)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, mig := range status {
		assert.True(t, mig.IsApplied, "migration %d", mig.Version)
	}

	require.NoError(t, m.Rollback(ctx))
	_, err = s.ListHabits(ctx, alice)
	assert.Error(t, err)

	require.NoError(t, m.Migrate(ctx))
	_, err = s.ListHabits(ctx, alice)
	assert.NoError(t, err)
}

func TestOpen_SkipMigrations(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "fresh.db"))
	cfg.SkipMigrations = true

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	status, err := NewMigrator(s).Status(ctx)
	require.NoError(t, err)
	for _, mig := range status {
		assert.False(t, mig.IsApplied, "migration %d", mig.Version)
	}

	_, err = s.ListHabits(ctx, alice)
	assert.Error(t, err)
}
