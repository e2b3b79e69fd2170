package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/persistence/sqlite"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

const owner habit.OwnerID = 77

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string][]error
}

func (o *recordingObserver) Observe(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string][]error{}
	}
	o.calls[op] = append(o.calls[op], err)
}

func newTestService(t *testing.T, opts Options) (*HabitService, *timeutil.FixedClock) {
	t.Helper()

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(filepath.Join(t.TempDir(), "svc.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := timeutil.NewFixedClockOn(timeutil.NewDate(2025, 1, 10))
	return NewHabitService(store, clock, opts), clock
}

func TestHabitService_AddHabit_Validation(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	svc, _ := newTestService(t, Options{Observer: obs})

	_, err := svc.AddHabit(ctx, owner, " run ")
	assert.ErrorIs(t, err, shared.ErrNameTooShort)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.AddHabit(ctx, owner, "a habit name that is far too long")
	assert.ErrorIs(t, err, shared.ErrNameTooLong)

	habits, err := svc.ListForDisplay(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, habits)

	id, err := svc.AddHabit(ctx, owner, "  running  ")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = svc.AddHabit(ctx, owner, "running")
	assert.Equal(t, shared.KindDuplicate, shared.KindOf(err))

	require.Len(t, obs.calls[OpAdd], 4)
	assert.NoError(t, obs.calls[OpAdd][2])
}

func TestHabitService_CompleteAcrossDays(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, Options{})

	id, err := svc.AddHabit(ctx, owner, "reading")
	require.NoError(t, err)

	h, err := svc.CompleteHabit(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentStreak)
	assert.Equal(t, timeutil.NewDate(2025, 1, 10), *h.LastCompleted)

	_, err = svc.CompleteHabit(ctx, owner, id)
	assert.Equal(t, shared.KindAlreadyCompleted, shared.KindOf(err))

	clock.AdvanceDays(1)
	h, err = svc.CompleteHabit(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, 2, h.CurrentStreak)

	clock.AdvanceDays(2)
	h, err = svc.CompleteHabit(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentStreak)
	assert.Equal(t, int64(3), h.TotalCompletions)

	res, err := svc.History(ctx, owner, id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Completions, 2)
	assert.Equal(t, svc.Today(), res.Completions[0].CompletedOn)
}

func TestHabitService_ListCompletableToday(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, Options{})

	water, err := svc.AddHabit(ctx, owner, "water")
	require.NoError(t, err)
	_, err = svc.AddHabit(ctx, owner, "walking")
	require.NoError(t, err)

	_, err = svc.CompleteHabit(ctx, owner, water)
	require.NoError(t, err)

	today, err := svc.ListCompletableToday(ctx, owner)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "walking", today[0].Name)

	all, err := svc.ListForDisplay(ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "water", all[0].Name)

	clock.AdvanceDays(1)
	today, err = svc.ListCompletableToday(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, today, 2)
}

func TestHabitService_DeleteHabit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})

	id, err := svc.AddHabit(ctx, owner, "stretching")
	require.NoError(t, err)

	err = svc.DeleteHabit(ctx, owner+1, id)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	require.NoError(t, svc.DeleteHabit(ctx, owner, id))
	assert.ErrorIs(t, svc.DeleteHabit(ctx, owner, id), shared.ErrHabitNotFound)

	_, err = svc.History(ctx, owner, id, 0)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}

type stubLocker struct {
	held     bool
	err      error
	released int
}

func (l *stubLocker) Lock(_ context.Context, _ habit.ID, _ time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, shared.ErrCompletionConflict
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

func TestHabitService_CompleteUsesLocker(t *testing.T) {
	ctx := context.Background()
	locker := &stubLocker{}
	svc, _ := newTestService(t, Options{Locker: locker})

	id, err := svc.AddHabit(ctx, owner, "pushups")
	require.NoError(t, err)

	_, err = svc.CompleteHabit(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.False(t, locker.held)

	// a held lock surfaces as a retryable conflict and leaves the habit alone
	locker.held = true
	_, err = svc.CompleteHabit(ctx, owner, id)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.True(t, shared.IsRetryable(err))

	locker.held = false
	locker.err = errors.New("redis down")
	_, err = svc.CompleteHabit(ctx, owner, id)
	assert.Equal(t, shared.KindUnknown, shared.KindOf(err))
}

func TestHabitService_History(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, Options{})

	id, err := svc.AddHabit(ctx, owner, "meditate")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.CompleteHabit(ctx, owner, id)
		require.NoError(t, err)
		clock.AdvanceDays(2)
	}

	res, err := svc.History(ctx, owner, id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Completions, 2)
	assert.Equal(t, timeutil.NewDate(2025, 1, 14), res.Completions[0].CompletedOn)
	assert.Equal(t, timeutil.NewDate(2025, 1, 12), res.Completions[1].CompletedOn)

	all, err := svc.History(ctx, owner, id, -1)
	require.NoError(t, err)
	assert.Len(t, all.Completions, 3)

	_, err = svc.History(ctx, owner+1, id, 0)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}
