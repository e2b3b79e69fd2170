package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// Compile-time check.
var _ habit.Store = (*Store)(nil)

const habitColumns = `id, owner_id, name, created_at, last_completed, current_streak, total_completions`

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateHabit inserts a new habit for owner.
func (s *Store) CreateHabit(ctx context.Context, owner habit.OwnerID, name string) (habit.ID, error) {
	name = habit.NormalizeName(name)
	var id habit.ID

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM habits WHERE owner_id = ? AND name = ?)`,
			int64(owner), name,
		).Scan(&exists)
		if err != nil {
			return shared.StorageError("CreateHabit", err)
		}
		if exists {
			return shared.ErrDuplicateHabit
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO habits (owner_id, name, created_at, last_completed, current_streak, total_completions)
			VALUES (?, ?, ?, NULL, 0, 0)`,
			int64(owner), name, time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return shared.ErrDuplicateHabit
			}
			return shared.StorageError("CreateHabit", err)
		}

		last, err := res.LastInsertId()
		if err != nil {
			return shared.StorageError("CreateHabit", err)
		}
		id = habit.ID(last)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// DeleteHabit removes the habit and its completion log.
func (s *Store) DeleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM habits WHERE id = ? AND owner_id = ?`, int64(id), int64(owner))
		if err != nil {
			return shared.StorageError("DeleteHabit", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return shared.StorageError("DeleteHabit", err)
		}
		if n == 0 {
			return shared.ErrHabitNotFound
		}

		// The foreign key cascades too; this keeps files opened without
		// foreign_keys(1) consistent.
		if _, err := tx.ExecContext(ctx, `DELETE FROM completions WHERE habit_id = ?`, int64(id)); err != nil {
			return shared.StorageError("DeleteHabit", err)
		}
		return nil
	})
}

// CompleteHabit records a completion of id on today.
func (s *Store) CompleteHabit(ctx context.Context, id habit.ID, owner habit.OwnerID, today timeutil.Date) (habit.Habit, error) {
	var updated habit.Habit

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getHabit(ctx, tx, owner, id)
		if err != nil {
			return err
		}

		tr, err := habit.PlanCompletion(current, today)
		if err != nil {
			return err
		}

		var prevDay any
		if tr.PreviousDay != nil {
			prevDay = tr.PreviousDay.String()
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE habits
			SET last_completed = ?, current_streak = ?, total_completions = total_completions + 1
			WHERE id = ? AND owner_id = ? AND current_streak = ? AND last_completed IS ?`,
			today.String(), tr.NewStreak,
			int64(id), int64(owner), tr.PreviousCount, prevDay,
		)
		if err != nil {
			return shared.StorageError("CompleteHabit", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return shared.StorageError("CompleteHabit", err)
		}
		if n == 0 {
			return shared.ErrCompletionConflict
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO completions (habit_id, completion_date) VALUES (?, ?)`,
			int64(id), today.String())
		if err != nil {
			// A clock moved back onto a day already in the log passes
			// PlanCompletion but collides here; the day is still done.
			if isUniqueViolation(err) {
				return shared.ErrAlreadyCompletedToday
			}
			return shared.StorageError("CompleteHabit", err)
		}

		updated, err = getHabit(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return habit.Habit{}, err
	}

	return updated, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListHabits returns owner's habits, highest streak first.
func (s *Store) ListHabits(ctx context.Context, owner habit.OwnerID) ([]habit.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+habitColumns+`
		FROM habits
		WHERE owner_id = ?
		ORDER BY current_streak DESC, name ASC`,
		int64(owner),
	)
	if err != nil {
		return nil, shared.StorageError("ListHabits", err)
	}
	defer rows.Close()

	habits := make([]habit.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, shared.StorageError("ListHabits", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("ListHabits", err)
	}

	return habits, nil
}

// ListCompletions returns the completion log of id, newest first.
func (s *Store) ListCompletions(ctx context.Context, owner habit.OwnerID, id habit.ID) ([]habit.Completion, error) {
	var out []habit.Completion

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getHabit(ctx, tx, owner, id); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, habit_id, completion_date
			FROM completions
			WHERE habit_id = ?
			ORDER BY completion_date DESC`,
			int64(id),
		)
		if err != nil {
			return shared.StorageError("ListCompletions", err)
		}
		defer rows.Close()

		out = make([]habit.Completion, 0)
		for rows.Next() {
			var (
				c       habit.Completion
				habitID int64
				day     string
			)
			if err := rows.Scan(&c.ID, &habitID, &day); err != nil {
				return shared.StorageError("ListCompletions", err)
			}
			c.HabitID = habit.ID(habitID)
			if c.CompletedOn, err = timeutil.ParseDate(day); err != nil {
				return shared.StorageError("ListCompletions", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return shared.StorageError("ListCompletions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type rowScanner interface {
	Scan(dest ...any) error
}

func getHabit(ctx context.Context, tx *sql.Tx, owner habit.OwnerID, id habit.ID) (habit.Habit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = ? AND owner_id = ?`,
		int64(id), int64(owner))

	h, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return habit.Habit{}, shared.ErrHabitNotFound
		}
		return habit.Habit{}, shared.StorageError("GetHabit", err)
	}
	return h, nil
}

func scanHabit(row rowScanner) (habit.Habit, error) {
	var (
		h             habit.Habit
		id, owner     int64
		createdAt     string
		lastCompleted sql.NullString
	)

	err := row.Scan(&id, &owner, &h.Name, &createdAt, &lastCompleted, &h.CurrentStreak, &h.TotalCompletions)
	if err != nil {
		return habit.Habit{}, err
	}

	h.ID = habit.ID(id)
	h.OwnerID = habit.OwnerID(owner)

	if h.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return habit.Habit{}, fmt.Errorf("parse created_at: %w", err)
	}
	if lastCompleted.Valid {
		d, err := timeutil.ParseDate(lastCompleted.String)
		if err != nil {
			return habit.Habit{}, fmt.Errorf("parse last_completed: %w", err)
		}
		h.LastCompleted = &d
	}

	return h, nil
}
