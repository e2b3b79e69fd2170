package postgres

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// These tests need a disposable database; they drop and recreate the schema.
const testDatabaseEnv = "STREAKBOT_TEST_DATABASE_URL"

func newTestRepository(t *testing.T) *HabitRepository {
	t.Helper()

	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	ctx := context.Background()
	conn, err := NewConnection(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	m := NewMigrator(conn)
	require.NoError(t, m.Migrate(ctx))
	_, err = conn.Exec(ctx, `TRUNCATE completions, habits RESTART IDENTITY`)
	require.NoError(t, err)

	return NewHabitRepository(conn)
}

func TestHabitRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	day := timeutil.NewDate(2025, 3, 10)

	ids := map[string]habit.ID{}
	for _, name := range []string{"bravo", "Alpha", "alpha", "delta"} {
		id, err := r.CreateHabit(ctx, 1, "  "+name+" ")
		require.NoError(t, err)
		ids[name] = id
	}

	_, err := r.CreateHabit(ctx, 1, "bravo")
	assert.ErrorIs(t, err, shared.ErrDuplicateHabit)

	_, err = r.CompleteHabit(ctx, ids["delta"], 1, day)
	require.NoError(t, err)

	habits, err := r.ListHabits(ctx, 1)
	require.NoError(t, err)

	names := make([]string, len(habits))
	for i, h := range habits {
		names[i] = h.Name
	}
	// bytewise: upper case sorts before lower case
	assert.Equal(t, []string{"delta", "Alpha", "alpha", "bravo"}, names)

	empty, err := r.ListHabits(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestHabitRepository_CompleteHabit(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	day := timeutil.NewDate(2025, 12, 31)

	id, err := r.CreateHabit(ctx, 1, "stretch")
	require.NoError(t, err)

	h, err := r.CompleteHabit(ctx, id, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentStreak)

	h, err = r.CompleteHabit(ctx, id, 1, day.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 2, h.CurrentStreak)
	assert.Equal(t, int64(2), h.TotalCompletions)
	require.NotNil(t, h.LastCompleted)
	assert.Equal(t, day.AddDays(1), *h.LastCompleted)

	_, err = r.CompleteHabit(ctx, id, 1, day.AddDays(1))
	assert.ErrorIs(t, err, shared.ErrAlreadyCompletedToday)

	h, err = r.CompleteHabit(ctx, id, 1, day.AddDays(5))
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentStreak)

	_, err = r.CompleteHabit(ctx, id, 2, day.AddDays(6))
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}

func TestHabitRepository_CompleteHabit_BackwardsOntoLoggedDay(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := r.CreateHabit(ctx, 1, "walk")
	require.NoError(t, err)

	_, err = r.CompleteHabit(ctx, id, 1, day)
	require.NoError(t, err)
	_, err = r.CompleteHabit(ctx, id, 1, day.AddDays(2))
	require.NoError(t, err)

	_, err = r.CompleteHabit(ctx, id, 1, day)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompletedToday)

	habits, err := r.ListHabits(ctx, 1)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, 1, habits[0].CurrentStreak)
	assert.Equal(t, int64(2), habits[0].TotalCompletions)
	require.NotNil(t, habits[0].LastCompleted)
	assert.Equal(t, day.AddDays(2), *habits[0].LastCompleted)
}

func TestHabitRepository_ClosedReportsStorageKind(t *testing.T) {
	ctx := context.Background()
	r := NewHabitRepository(&Connection{closed: true})
	day := timeutil.NewDate(2025, 6, 1)

	_, err := r.CreateHabit(ctx, 1, "floss")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err))

	err = r.DeleteHabit(ctx, 1, 1)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err))

	_, err = r.CompleteHabit(ctx, 1, 1, day)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err))

	_, err = r.ListHabits(ctx, 1)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err))

	_, err = r.ListCompletions(ctx, 1, 1)
	assert.Equal(t, shared.KindStorage, shared.KindOf(err))
}

func TestHabitRepository_CompleteHabit_Concurrent(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	day := timeutil.NewDate(2025, 6, 1)

	id, err := r.CreateHabit(ctx, 1, "pushups")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.CompleteHabit(ctx, id, 1, day)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			kind := shared.KindOf(err)
			assert.Contains(t, []shared.Kind{shared.KindAlreadyCompleted, shared.KindConflict}, kind)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	log, err := r.ListCompletions(ctx, 1, id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestHabitRepository_DeleteHabit(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)

	id, err := r.CreateHabit(ctx, 1, "meditate")
	require.NoError(t, err)
	_, err = r.CompleteHabit(ctx, id, 1, timeutil.NewDate(2025, 6, 1))
	require.NoError(t, err)

	assert.ErrorIs(t, r.DeleteHabit(ctx, 2, id), shared.ErrHabitNotFound)
	require.NoError(t, r.DeleteHabit(ctx, 1, id))
	assert.ErrorIs(t, r.DeleteHabit(ctx, 1, id), shared.ErrHabitNotFound)

	var n int
	require.NoError(t, r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM completions WHERE habit_id = $1`, int64(id)).Scan(&n))
	assert.Zero(t, n)

	_, err = r.ListCompletions(ctx, 1, id)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}
