package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupy_FirstAndSecondSlot(t *testing.T) {
	s := NewSession("ABC123", time.Now())

	assert.Equal(t, OutcomeFirstSlot, s.Occupy("Alice", ""))
	assert.False(t, s.Connected())

	assert.Equal(t, OutcomeSecondSlot, s.Occupy("Bob", "https://example.com/hook"))
	assert.True(t, s.Connected())
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
}

func TestOccupy_ReRegistrationIsIdempotent(t *testing.T) {
	s := NewSession("ABC123", time.Now())
	s.Occupy("Alice", "")
	s.Occupy("Bob", "")

	for range 3 {
		assert.Equal(t, OutcomeRefreshed, s.Occupy("Alice", ""))
	}
	assert.True(t, s.Connected())
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
}

func TestOccupy_ChannelLastWriteWinsNeverCleared(t *testing.T) {
	s := NewSession("ABC123", time.Now())
	s.Occupy("Alice", "token-1")

	s.Occupy("Alice", "token-2")
	assert.Equal(t, "token-2", s.SlotA.ExternalChannel)

	// Empty channel must not clear the stored one.
	s.Occupy("Alice", "")
	assert.Equal(t, "token-2", s.SlotA.ExternalChannel)
}

func TestOccupy_ThirdNameIsRoomFull(t *testing.T) {
	s := NewSession("ABC123", time.Now())
	s.Occupy("Alice", "")
	s.Occupy("Bob", "")

	assert.Equal(t, OutcomeRoomFull, s.Occupy("Carol", "token"))
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
	assert.True(t, s.Connected())
}

func TestPartner(t *testing.T) {
	s := NewSession("ABC123", time.Now())
	s.Occupy("Alice", "")

	_, ok := s.Partner("Alice")
	assert.False(t, ok, "half-filled session has no partner")

	s.Occupy("Bob", "hook-b")

	partner, ok := s.Partner("Alice")
	require.True(t, ok)
	assert.Equal(t, "Bob", partner.Name)
	assert.Equal(t, "hook-b", partner.ExternalChannel)

	partner, ok = s.Partner("Bob")
	require.True(t, ok)
	assert.Equal(t, "Alice", partner.Name)

	_, ok = s.Partner("Carol")
	assert.False(t, ok, "unknown sender must not resolve a partner")
}

func TestDrain_RemovesAllMatchesKeepsOthers(t *testing.T) {
	now := time.Now()
	s := NewSession("ABC123", now)
	s.Occupy("Alice", "")
	s.Occupy("Bob", "")

	s.Enqueue(Notification{SenderName: "Alice", RecipientName: "Bob", CreatedAt: now, Payload: json.RawMessage(`"one"`)})
	s.Enqueue(Notification{SenderName: "Alice", RecipientName: "Bob", CreatedAt: now, Payload: json.RawMessage(`"two"`)})
	s.Enqueue(Notification{SenderName: "Bob", RecipientName: "Alice", CreatedAt: now})

	payload, ok := s.Drain("Bob")
	require.True(t, ok)
	assert.JSONEq(t, `"two"`, string(payload), "drain carries the most recently enqueued payload")

	_, ok = s.Drain("Bob")
	assert.False(t, ok, "second drain finds nothing")

	// Alice's entry survived Bob's drain.
	_, ok = s.Drain("Alice")
	assert.True(t, ok)
}

func TestDrain_NoMatchLeavesQueueUntouched(t *testing.T) {
	now := time.Now()
	s := NewSession("ABC123", now)
	s.Enqueue(Notification{SenderName: "Alice", RecipientName: "Bob", CreatedAt: now})

	_, ok := s.Drain("Alice")
	assert.False(t, ok)
	assert.Len(t, s.Pending, 1)
}

func TestDrain_BroadcastMatchesAnyoneButSender(t *testing.T) {
	now := time.Now()
	s := NewSession("ABC123", now)
	s.Enqueue(Notification{SenderName: "Alice", CreatedAt: now})

	_, ok := s.Drain("Alice")
	assert.False(t, ok, "sender must not receive its own broadcast")

	_, ok = s.Drain("Bob")
	assert.True(t, ok)
}

func TestEvictOlderThan(t *testing.T) {
	now := time.Now()
	s := NewSession("ABC123", now)
	s.Enqueue(Notification{SenderName: "Alice", RecipientName: "Bob", CreatedAt: now.Add(-15 * time.Minute)})
	s.Enqueue(Notification{SenderName: "Alice", RecipientName: "Bob", CreatedAt: now})

	assert.Equal(t, 1, s.EvictOlderThan(now.Add(-10*time.Minute)))
	require.Len(t, s.Pending, 1)
	assert.Equal(t, now, s.Pending[0].CreatedAt)

	assert.Equal(t, 0, s.EvictOlderThan(now.Add(-10*time.Minute)))
}
