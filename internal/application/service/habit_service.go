// Package service exposes the habit use cases behind one facade that owns the
// clock, so every caller agrees on what "today" is.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/streakbot/habit-streak-bot/internal/application/command"
	"github.com/streakbot/habit-streak-bot/internal/application/query"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/logger"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// Operation names used for metrics and logs.
const (
	OpAdd      = "add"
	OpList     = "list"
	OpToday    = "today"
	OpDelete   = "delete"
	OpComplete = "complete"
	OpHistory  = "history"
)

// Observer receives the outcome of every service call.
type Observer interface {
	Observe(op string, err error, elapsed time.Duration)
}

// Options contains the optional collaborators of a HabitService.
type Options struct {
	// Locker, if set, serializes completions of a habit across instances.
	Locker habit.Locker

	// LockTTL bounds how long a crashed holder blocks the habit.
	LockTTL time.Duration

	// Observer, if set, is told about every call.
	Observer Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// HabitService is the application facade used by the chat layer.
type HabitService struct {
	clock    timeutil.Clock
	observer Observer
	logger   *slog.Logger

	addHabit      *command.AddHabitHandler
	deleteHabit   *command.DeleteHabitHandler
	completeHabit *command.CompleteHabitHandler
	listHabits    *query.ListHabitsHandler
	history       *query.HabitHistoryHandler
}

// NewHabitService wires the handlers around store.
func NewHabitService(store habit.Store, clock timeutil.Clock, opts Options) *HabitService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &HabitService{
		clock:       clock,
		observer:    opts.Observer,
		logger:      opts.Logger.With(logger.Component("habit_service")),
		addHabit:    command.NewAddHabitHandler(store),
		deleteHabit: command.NewDeleteHabitHandler(store),
		completeHabit: command.NewCompleteHabitHandler(
			store,
			opts.Locker,
			command.CompleteHabitHandlerConfig{LockTTL: opts.LockTTL},
			opts.Logger,
		),
		listHabits: query.NewListHabitsHandler(store),
		history:    query.NewHabitHistoryHandler(store),
	}
}

// Today returns the current calendar day according to the service clock.
func (s *HabitService) Today() timeutil.Date {
	return s.clock.Today()
}

// AddHabit validates the name and registers a new habit.
func (s *HabitService) AddHabit(ctx context.Context, owner habit.OwnerID, rawName string) (id habit.ID, err error) {
	defer s.track(ctx, OpAdd, owner, time.Now(), &err)

	res, err := s.addHabit.Handle(ctx, command.AddHabitCommand{OwnerID: owner, Name: rawName})
	if err != nil {
		return 0, err
	}
	return res.HabitID, nil
}

// ListForDisplay returns every habit of owner, highest streak first.
func (s *HabitService) ListForDisplay(ctx context.Context, owner habit.OwnerID) (habits []habit.Habit, err error) {
	defer s.track(ctx, OpList, owner, time.Now(), &err)

	res, err := s.listHabits.Handle(ctx, query.ListHabitsQuery{OwnerID: owner})
	if err != nil {
		return nil, err
	}
	return res.Habits, nil
}

// ListCompletableToday returns the habits not yet completed today, in
// display order.
func (s *HabitService) ListCompletableToday(ctx context.Context, owner habit.OwnerID) (habits []habit.Habit, err error) {
	defer s.track(ctx, OpToday, owner, time.Now(), &err)

	today := s.clock.Today()
	res, err := s.listHabits.Handle(ctx, query.ListHabitsQuery{OwnerID: owner, CompletableOn: &today})
	if err != nil {
		return nil, err
	}
	return res.Habits, nil
}

// DeleteHabit removes a habit and its history.
func (s *HabitService) DeleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) (err error) {
	defer s.track(ctx, OpDelete, owner, time.Now(), &err)

	return s.deleteHabit.Handle(ctx, command.DeleteHabitCommand{OwnerID: owner, HabitID: id})
}

// CompleteHabit marks the habit done for today and returns its new state.
func (s *HabitService) CompleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) (h habit.Habit, err error) {
	defer s.track(ctx, OpComplete, owner, time.Now(), &err)

	res, err := s.completeHabit.Handle(ctx, command.CompleteHabitCommand{
		OwnerID: owner,
		HabitID: id,
		Today:   s.clock.Today(),
	})
	if err != nil {
		return habit.Habit{}, err
	}
	return res.Habit, nil
}

// History returns up to limit completions of the habit, newest first.
func (s *HabitService) History(ctx context.Context, owner habit.OwnerID, id habit.ID, limit int) (res *query.HabitHistoryResult, err error) {
	defer s.track(ctx, OpHistory, owner, time.Now(), &err)

	return s.history.Handle(ctx, query.HabitHistoryQuery{OwnerID: owner, HabitID: id, Limit: limit})
}

// track reports the call to the observer and logs unexpected failures.
// Expected outcomes such as validation errors are logged at debug level.
func (s *HabitService) track(ctx context.Context, op string, owner habit.OwnerID, start time.Time, errp *error) {
	elapsed := time.Since(start)
	err := *errp

	if s.observer != nil {
		s.observer.Observe(op, err, elapsed)
	}

	if err == nil {
		return
	}

	kind := shared.KindOf(err)
	level := slog.LevelDebug
	if kind == shared.KindStorage || kind == shared.KindUnknown {
		level = slog.LevelError
	}

	s.logger.LogAttrs(ctx, level, "habit operation failed",
		logger.Operation(op),
		logger.OwnerID(int64(owner)),
		slog.String("kind", kind.String()),
		logger.Latency(elapsed),
		logger.Err(err),
	)
}
