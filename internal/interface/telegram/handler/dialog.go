package handler

import (
	"sync"
	"time"

	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
)

// DefaultDialogTTL is how long an unanswered prompt stays open.
const DefaultDialogTTL = 5 * time.Minute

// Step identifies what the bot is waiting for in a chat.
type Step int

const (
	// StepNone means no dialog is open.
	StepNone Step = iota

	// StepAwaitName waits for the name of a new habit.
	StepAwaitName

	// StepConfirmDelete waits for "yes" before deleting Dialog.HabitID.
	StepConfirmDelete
)

// Dialog is the open multi-step action of one user in one chat.
type Dialog struct {
	Step      Step
	HabitID   habit.ID
	HabitName string
	expiresAt time.Time
}

type dialogKey struct {
	chatID int64
	owner  habit.OwnerID
}

// Dialogs keeps at most one open dialog per user and chat.
type Dialogs struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[dialogKey]Dialog
}

// NewDialogs creates an empty dialog registry. A non-positive ttl selects
// DefaultDialogTTL.
func NewDialogs(ttl time.Duration) *Dialogs {
	if ttl <= 0 {
		ttl = DefaultDialogTTL
	}
	return &Dialogs{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[dialogKey]Dialog),
	}
}

// Open starts d for the user, replacing any previous dialog.
func (s *Dialogs) Open(chatID int64, owner habit.OwnerID, d Dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.expiresAt = s.now().Add(s.ttl)
	s.items[dialogKey{chatID, owner}] = d
	s.sweepLocked()
}

// Take removes and returns the open dialog of the user.
func (s *Dialogs) Take(chatID int64, owner habit.OwnerID) (Dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dialogKey{chatID, owner}
	d, ok := s.items[key]
	if !ok {
		return Dialog{}, false
	}
	delete(s.items, key)

	if !s.now().Before(d.expiresAt) {
		return Dialog{}, false
	}
	return d, true
}

// Len returns the number of open dialogs, expired ones included.
func (s *Dialogs) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Dialogs) sweepLocked() {
	now := s.now()
	for k, d := range s.items {
		if !now.Before(d.expiresAt) {
			delete(s.items, k)
		}
	}
}
