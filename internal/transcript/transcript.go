// Package transcript holds the in-memory conversation: an ordered list of turns
// of which at most one, the last, is a pending assistant turn still receiving
// streamed content.
//
// A Transcript is not safe for concurrent use; its owner serialises access.
package transcript

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Turn struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

var ErrPendingTurn = errors.New("transcript: a turn is still pending")

type Transcript struct {
	turns   []Turn
	index   map[string]int
	pending string
	now     func() time.Time
}

type Option func(*Transcript)

// WithClock overrides the timestamp source for new turns.
func WithClock(now func() time.Time) Option {
	return func(t *Transcript) { t.now = now }
}

func New(opts ...Option) *Transcript {
	t := &Transcript{
		index: make(map[string]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FromTurns rebuilds a sealed transcript from stored turns.
func FromTurns(turns []Turn, opts ...Option) (*Transcript, error) {
	t := New(opts...)
	for i, turn := range turns {
		if turn.ID == "" {
			return nil, fmt.Errorf("turn %d: empty id", i)
		}
		if !turn.Role.Valid() {
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
		if turn.CreatedAt.IsZero() {
			return nil, fmt.Errorf("turn %d: missing timestamp", i)
		}
		if _, dup := t.index[turn.ID]; dup {
			return nil, fmt.Errorf("turn %d: duplicate id %s", i, turn.ID)
		}
		t.index[turn.ID] = len(t.turns)
		t.turns = append(t.turns, turn)
	}
	return t, nil
}

func (t *Transcript) append(role Role, content string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: t.now().UTC(),
	}
	t.index[turn.ID] = len(t.turns)
	t.turns = append(t.turns, turn)
	return turn
}

func (t *Transcript) AppendUser(content string) (Turn, error) {
	if t.pending != "" {
		return Turn{}, ErrPendingTurn
	}
	return t.append(RoleUser, content), nil
}

// BeginAssistant appends an empty assistant turn and marks it pending.
func (t *Transcript) BeginAssistant() (Turn, error) {
	if t.pending != "" {
		return Turn{}, ErrPendingTurn
	}
	turn := t.append(RoleAssistant, "")
	t.pending = turn.ID
	return turn, nil
}

// AppendContent adds fragment to the pending turn with the given id. It reports
// false when no such turn exists or the turn has been sealed.
func (t *Transcript) AppendContent(id, fragment string) bool {
	if id == "" || id != t.pending {
		return false
	}
	i, ok := t.index[id]
	if !ok {
		return false
	}
	t.turns[i].Content += fragment
	return true
}

// Seal ends streaming into the turn with the given id. Sealing a turn that is
// not pending is a no-op.
func (t *Transcript) Seal(id string) {
	if t.pending == id {
		t.pending = ""
	}
}

func (t *Transcript) Pending() (Turn, bool) {
	if t.pending == "" {
		return Turn{}, false
	}
	return t.turns[t.index[t.pending]], true
}

func (t *Transcript) Get(id string) (Turn, bool) {
	i, ok := t.index[id]
	if !ok {
		return Turn{}, false
	}
	return t.turns[i], true
}

// Turns returns a copy in conversational order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	return len(t.turns)
}

// Clear drops every turn, including a pending one. Content streamed afterwards
// for the old pending id is rejected by AppendContent.
func (t *Transcript) Clear() {
	t.turns = nil
	t.index = make(map[string]int)
	t.pending = ""
}
