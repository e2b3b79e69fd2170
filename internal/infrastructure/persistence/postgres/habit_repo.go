package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Compile-time check.
var _ habit.Store = (*HabitRepository)(nil)

const habitColumns = `id, owner_id, name, created_at, last_completed, current_streak, total_completions`

// HabitRepository implements habit.Store for PostgreSQL.
type HabitRepository struct {
	conn *Connection
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(conn *Connection) *HabitRepository {
	return &HabitRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// CreateHabit inserts a new habit for owner.
func (r *HabitRepository) CreateHabit(ctx context.Context, owner habit.OwnerID, name string) (habit.ID, error) {
	name = habit.NormalizeName(name)

	var id int64
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM habits WHERE owner_id = $1 AND name = $2)`,
			int64(owner), name,
		).Scan(&exists)
		if err != nil {
			return shared.StorageError("CreateHabit", err)
		}
		if exists {
			return shared.ErrDuplicateHabit
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO habits (owner_id, name, created_at, last_completed, current_streak, total_completions)
			VALUES ($1, $2, $3, NULL, 0, 0)
			RETURNING id`,
			int64(owner), name, time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			// a concurrent insert of the same name slipped past the pre-check
			if IsUniqueViolation(err) {
				return shared.ErrDuplicateHabit
			}
			return shared.StorageError("CreateHabit", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return habit.ID(id), nil
}

// DeleteHabit removes the habit; completions go with it through the cascade.
func (r *HabitRepository) DeleteHabit(ctx context.Context, owner habit.OwnerID, id habit.ID) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM habits WHERE id = $1 AND owner_id = $2`, int64(id), int64(owner))
		if err != nil {
			return shared.StorageError("DeleteHabit", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrHabitNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM completions WHERE habit_id = $1`, int64(id)); err != nil {
			return shared.StorageError("DeleteHabit", err)
		}
		return nil
	})
}

// CompleteHabit records a completion of id on today.
// The habit row is locked for the duration of the transaction.
func (r *HabitRepository) CompleteHabit(ctx context.Context, id habit.ID, owner habit.OwnerID, today timeutil.Date) (habit.Habit, error) {
	var updated habit.Habit

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		current, err := getHabit(ctx, tx, owner, id, true)
		if err != nil {
			return err
		}

		tr, err := habit.PlanCompletion(current, today)
		if err != nil {
			return err
		}

		var prevDay *time.Time
		if tr.PreviousDay != nil {
			t := tr.PreviousDay.In(time.UTC)
			prevDay = &t
		}

		tag, err := tx.Exec(ctx, `
			UPDATE habits
			SET last_completed = $1, current_streak = $2, total_completions = total_completions + 1
			WHERE id = $3 AND owner_id = $4
			  AND current_streak = $5
			  AND last_completed IS NOT DISTINCT FROM $6::date`,
			today.In(time.UTC), tr.NewStreak,
			int64(id), int64(owner), tr.PreviousCount, prevDay,
		)
		if err != nil {
			return shared.StorageError("CompleteHabit", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrCompletionConflict
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO completions (habit_id, completion_date) VALUES ($1, $2)`,
			int64(id), today.In(time.UTC))
		if err != nil {
			// A clock moved back onto a day already in the log passes
			// PlanCompletion but collides here; the day is still done.
			if IsUniqueViolation(err) {
				return shared.ErrAlreadyCompletedToday
			}
			return shared.StorageError("CompleteHabit", err)
		}

		updated, err = getHabit(ctx, tx, owner, id, false)
		return err
	})
	if err != nil {
		return habit.Habit{}, err
	}

	return updated, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// ListHabits returns owner's habits, highest streak first.
// Names compare bytewise so the order matches the other stores.
func (r *HabitRepository) ListHabits(ctx context.Context, owner habit.OwnerID) ([]habit.Habit, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+habitColumns+`
		FROM habits
		WHERE owner_id = $1
		ORDER BY current_streak DESC, name COLLATE "C" ASC`,
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
func (r *HabitRepository) ListCompletions(ctx context.Context, owner habit.OwnerID, id habit.ID) ([]habit.Completion, error) {
	var out []habit.Completion

	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		if _, err := getHabit(ctx, tx, owner, id, false); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT id, habit_id, completion_date
			FROM completions
			WHERE habit_id = $1
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
				day     time.Time
			)
			if err := rows.Scan(&c.ID, &habitID, &day); err != nil {
				return shared.StorageError("ListCompletions", err)
			}
			c.HabitID = habit.ID(habitID)
			c.CompletedOn = timeutil.DateOf(day)
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

// Ping checks the database connection.
func (r *HabitRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// Close closes the connection pool.
func (r *HabitRepository) Close() error {
	r.conn.Close()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func getHabit(ctx context.Context, q Querier, owner habit.OwnerID, id habit.ID, forUpdate bool) (habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	h, err := scanHabit(q.QueryRow(ctx, query, int64(id), int64(owner)))
	if err != nil {
		if IsNoRows(err) {
			return habit.Habit{}, shared.ErrHabitNotFound
		}
		return habit.Habit{}, shared.StorageError("GetHabit", err)
	}
	return h, nil
}

func scanHabit(row pgx.Row) (habit.Habit, error) {
	var (
		h             habit.Habit
		id, owner     int64
		lastCompleted *time.Time
	)

	err := row.Scan(&id, &owner, &h.Name, &h.CreatedAt, &lastCompleted, &h.CurrentStreak, &h.TotalCompletions)
	if err != nil {
		return habit.Habit{}, err
	}

	h.ID = habit.ID(id)
	h.OwnerID = habit.OwnerID(owner)
	if lastCompleted != nil {
		d := timeutil.DateOf(*lastCompleted)
		h.LastCompleted = &d
	}

	return h, nil
}
