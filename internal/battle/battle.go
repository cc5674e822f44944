package battle

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrNotAdmin = errors.New("requester is not the battle admin")
var ErrInvalidState = errors.New("action not valid in current battle state")
var ErrNotInBattle = errors.New("user never joined this battle")

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Participant is per-user bookkeeping inside one battle. Records
// survive disconnects; connectivity is the room's concern, not ours.
type Participant struct {
	UserID      string
	TestsPassed int
	TotalTests  int
	JoinedAt    time.Time
}

type Result struct {
	UserID      string
	Placement   int
	TestsPassed int
	TotalTests  int
}

// Battle holds one room's lifecycle: waiting -> active -> completed,
// or cancelled from waiting/active. Transitions are monotonic; a
// closed battle never mutates again.
type Battle struct {
	ID          string
	RoomID      string
	Status      Status
	AdminID     string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Results     []Result

	participants []*Participant // first-join order
	byUser       map[string]*Participant
}

// New creates a waiting battle owned by adminID (the first joiner).
func New(roomID, adminID string, now time.Time) *Battle {
	return &Battle{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Status:    StatusWaiting,
		AdminID:   adminID,
		CreatedAt: now,
		byUser:    make(map[string]*Participant),
	}
}

func (b *Battle) Closed() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

// AddParticipant registers userID with zero scores. Re-adding an
// existing participant is a no-op in any state (reconnects). New
// participants are only accepted while waiting.
func (b *Battle) AddParticipant(userID string, now time.Time) error {
	if _, ok := b.byUser[userID]; ok {
		return nil
	}
	if b.Status != StatusWaiting {
		return ErrInvalidState
	}
	p := &Participant{UserID: userID, JoinedAt: now}
	b.participants = append(b.participants, p)
	b.byUser[userID] = p
	return nil
}

// UpdateScore overwrites the user's latest reported counts
// (last-write-wins, no accumulation). Active battles only.
func (b *Battle) UpdateScore(userID string, passed, total int) error {
	if b.Status != StatusActive {
		return ErrInvalidState
	}
	p, ok := b.byUser[userID]
	if !ok {
		return ErrNotInBattle
	}
	p.TestsPassed = passed
	p.TotalTests = total
	return nil
}

// Start moves waiting -> active. Admin only.
func (b *Battle) Start(requesterID string, now time.Time) error {
	if b.Status != StatusWaiting {
		return ErrInvalidState
	}
	if requesterID != b.AdminID {
		return ErrNotAdmin
	}
	b.Status = StatusActive
	b.StartedAt = &now
	return nil
}

// Complete moves active -> completed and computes final placements:
// testsPassed descending, ties broken by earlier join (stable sort on
// arrival order), placements 1..N.
func (b *Battle) Complete(requesterID string, now time.Time) ([]Result, error) {
	if b.Status != StatusActive {
		return nil, ErrInvalidState
	}
	if requesterID != b.AdminID {
		return nil, ErrNotAdmin
	}

	ranked := make([]*Participant, len(b.participants))
	copy(ranked, b.participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TestsPassed > ranked[j].TestsPassed
	})

	results := make([]Result, len(ranked))
	for i, p := range ranked {
		results[i] = Result{
			UserID:      p.UserID,
			Placement:   i + 1,
			TestsPassed: p.TestsPassed,
			TotalTests:  p.TotalTests,
		}
	}

	b.Status = StatusCompleted
	b.CompletedAt = &now
	b.Results = results
	return results, nil
}

// Cancel is valid from waiting or active. No placements are computed.
func (b *Battle) Cancel(requesterID string, now time.Time) error {
	if b.Closed() {
		return ErrInvalidState
	}
	if requesterID != b.AdminID {
		return ErrNotAdmin
	}
	b.Status = StatusCancelled
	b.CompletedAt = &now
	return nil
}

// Participants returns the records in first-join order. The returned
// slice is a copy; callers can't reach internal state through it.
func (b *Battle) Participants() []Participant {
	out := make([]Participant, len(b.participants))
	for i, p := range b.participants {
		out[i] = *p
	}
	return out
}

func (b *Battle) ParticipantCount() int { return len(b.participants) }
