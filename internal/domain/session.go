package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Identity is one occupant of a session slot. ExternalChannel is an opaque
// channel descriptor (a webhook URL or a Pebble timeline token); the core
// never inspects it beyond emptiness.
type Identity struct {
	Name            string `json:"name"`
	ExternalChannel string `json:"externalChannel,omitempty"`
}

// Notification is a single queued "thinking of you" signal. Immutable after
// creation; it disappears either through a drain or through janitor eviction.
// An empty RecipientName means "whichever occupant is not the sender".
type Notification struct {
	SenderName    string          `json:"senderName"`
	RecipientName string          `json:"recipientName,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// addressedTo reports whether the notification should be delivered to the
// given poller.
func (n Notification) addressedTo(name string) bool {
	if n.RecipientName != "" {
		return n.RecipientName == name
	}
	return n.SenderName != name
}

// Session is the shared state two clients converge on under a link code.
// At most two slots; SlotA is the first occupant. AuxData is a single
// overwritable cache slot with a lifecycle independent of Pending.
type Session struct {
	LinkCode  string          `json:"linkCode"`
	SlotA     *Identity       `json:"slotA,omitempty"`
	SlotB     *Identity       `json:"slotB,omitempty"`
	Pending   []Notification  `json:"pending,omitempty"`
	AuxData   json.RawMessage `json:"auxData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func NewSession(linkCode string, now time.Time) *Session {
	return &Session{LinkCode: linkCode, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy. Stores hand out clones so callers can run a
// read-modify-write cycle without aliasing stored state.
func (s *Session) Clone() *Session {
	copied := *s
	if s.SlotA != nil {
		a := *s.SlotA
		copied.SlotA = &a
	}
	if s.SlotB != nil {
		b := *s.SlotB
		copied.SlotB = &b
	}
	if s.Pending != nil {
		copied.Pending = make([]Notification, len(s.Pending))
		copy(copied.Pending, s.Pending)
	}
	return &copied
}

// OccupyOutcome names what an upsert of an identity did to the session.
type OccupyOutcome string

const (
	OutcomeFirstSlot  OccupyOutcome = "first_slot"
	OutcomeSecondSlot OccupyOutcome = "second_slot"
	OutcomeRefreshed  OccupyOutcome = "refreshed"
	OutcomeRoomFull   OccupyOutcome = "room_full"
)

// Occupy places name into a slot, or refreshes the slot it already holds.
// A non-empty channel always wins over the stored one; an empty channel
// never clears a previously set one. A third distinct name is a no-op
// reported as OutcomeRoomFull.
func (s *Session) Occupy(name, externalChannel string) OccupyOutcome {
	for _, slot := range []*Identity{s.SlotA, s.SlotB} {
		if slot != nil && slot.Name == name {
			if externalChannel != "" {
				slot.ExternalChannel = externalChannel
			}
			return OutcomeRefreshed
		}
	}
	id := &Identity{Name: name, ExternalChannel: externalChannel}
	switch {
	case s.SlotA == nil:
		s.SlotA = id
		return OutcomeFirstSlot
	case s.SlotB == nil:
		s.SlotB = id
		return OutcomeSecondSlot
	default:
		return OutcomeRoomFull
	}
}

// Connected reports whether both slots are occupied.
func (s *Session) Connected() bool {
	return s.SlotA != nil && s.SlotB != nil
}

// Names returns the occupied slot names in slot order.
func (s *Session) Names() []string {
	names := make([]string, 0, 2)
	if s.SlotA != nil {
		names = append(names, s.SlotA.Name)
	}
	if s.SlotB != nil {
		names = append(names, s.SlotB.Name)
	}
	return names
}

// Partner resolves the other occupant for senderName. It returns false when
// the session is not fully paired or when senderName matches neither slot;
// it never guesses.
func (s *Session) Partner(senderName string) (Identity, bool) {
	if !s.Connected() {
		return Identity{}, false
	}
	switch senderName {
	case s.SlotA.Name:
		return *s.SlotB, true
	case s.SlotB.Name:
		return *s.SlotA, true
	default:
		return Identity{}, false
	}
}

// Enqueue appends a notification to the pending queue.
func (s *Session) Enqueue(n Notification) {
	s.Pending = append(s.Pending, n)
}

// Drain removes every pending notification addressed to name and returns the
// payload of the most recently enqueued match. The second return is false
// when nothing matched, in which case the queue is untouched.
func (s *Session) Drain(name string) (json.RawMessage, bool) {
	var (
		kept    []Notification
		payload json.RawMessage
		found   bool
	)
	for _, n := range s.Pending {
		if n.addressedTo(name) {
			found = true
			if n.Payload != nil {
				payload = n.Payload
			}
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return nil, false
	}
	s.Pending = kept
	return payload, true
}

// EvictOlderThan drops pending notifications created at or before cutoff and
// returns how many were dropped.
func (s *Session) EvictOlderThan(cutoff time.Time) int {
	kept := s.Pending[:0]
	for _, n := range s.Pending {
		if n.CreatedAt.After(cutoff) {
			kept = append(kept, n)
		}
	}
	evicted := len(s.Pending) - len(kept)
	if evicted > 0 {
		s.Pending = kept
	}
	return evicted
}

// SessionRepository is the injectable storage backend for sessions. All
// callers must serialize read-modify-write cycles per link code themselves;
// implementations only guarantee that individual Get/Put calls are safe.
type SessionRepository interface {
	// Get returns the session for code, or ErrSessionNotFound.
	Get(ctx context.Context, code string) (*Session, error)
	// Put stores the session under its link code, overwriting any previous value.
	Put(ctx context.Context, session *Session) error
	// Delete removes the session for code. Missing codes are not an error.
	Delete(ctx context.Context, code string) error
	// Codes lists every stored link code.
	Codes(ctx context.Context) ([]string, error)
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}
