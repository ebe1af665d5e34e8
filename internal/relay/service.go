package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/metrics"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/notify"
)

// FailsafeDispatcher is the outbound side of the relay. Schedule is the
// delayed redundant delivery after a ping; Dispatch fires immediately and is
// used for pairing-time notifications; CancelFor drops pending tasks for a
// recipient (used only when cancel-on-drain is enabled).
type FailsafeDispatcher interface {
	Schedule(channel string, note notify.Note)
	Dispatch(channel string, note notify.Note)
	CancelFor(linkCode, recipientName string) int
}

// Options tune relay behavior beyond the original's hardcoded defaults.
type Options struct {
	// CancelFailsafeOnDrain cancels a recipient's pending failsafes when a
	// check drains their notifications, avoiding duplicate delivery at the
	// cost of losing the redundancy the failsafe exists for. Off by default.
	CancelFailsafeOnDrain bool
}

// Service owns all session mutation. See the package comment for the
// locking model.
type Service struct {
	store      domain.SessionRepository
	dispatcher FailsafeDispatcher
	clock      clockwork.Clock
	opts       Options

	mu sync.Mutex
}

func NewService(store domain.SessionRepository, dispatcher FailsafeDispatcher, clock clockwork.Clock, opts Options) *Service {
	return &Service{store: store, dispatcher: dispatcher, clock: clock, opts: opts}
}

// RegisterResult reports the state of the session after an upsert.
type RegisterResult struct {
	Outcome   domain.OccupyOutcome
	Connected bool
}

// Register upserts name into the session for linkCode, creating the session
// on first sight. A third distinct name is tolerated as a no-op (room full);
// the caller still learns the current connected state. When the registration
// completes the pair, the waiting partner gets an immediate best-effort
// notification on their external channel.
func (s *Service) Register(ctx context.Context, linkCode, name, externalChannel string) (RegisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	session, err := s.store.Get(ctx, linkCode)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		session = domain.NewSession(linkCode, now)
	case err != nil:
		return RegisterResult{}, fmt.Errorf("failed to load session: %w", err)
	}

	outcome := session.Occupy(name, externalChannel)
	metrics.RegistrationsTotal.WithLabelValues(string(outcome)).Inc()

	if outcome == domain.OutcomeRoomFull {
		// Permissive by design: the room-full registrant gets the current
		// state back instead of an error.
		slog.InfoContext(ctx, "Registration ignored, both slots occupied",
			"link_code", linkCode, "name", name)
		return RegisterResult{Outcome: outcome, Connected: session.Connected()}, nil
	}

	session.UpdatedAt = now
	if err := s.store.Put(ctx, session); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to store session: %w", err)
	}
	s.updateSessionGauge(ctx)

	if outcome == domain.OutcomeSecondSlot {
		s.notifyPairComplete(session, name)
	}

	return RegisterResult{Outcome: outcome, Connected: session.Connected()}, nil
}

// notifyPairComplete tells the waiting occupant that their partner arrived.
func (s *Service) notifyPairComplete(session *domain.Session, joinerName string) {
	partner, ok := session.Partner(joinerName)
	if !ok || partner.ExternalChannel == "" {
		return
	}
	s.dispatcher.Dispatch(partner.ExternalChannel, notify.Note{
		LinkCode:      session.LinkCode,
		SenderName:    joinerName,
		RecipientName: partner.Name,
		Message:       fmt.Sprintf("%s joined your link code", joinerName),
		SentAt:        s.clock.Now(),
	})
}

// PingResult reports whether a notification was actually queued. A ping from
// a name occupying neither slot is accepted but queues nothing.
type PingResult struct {
	Queued bool
}

// Ping queues a one-shot notification for the sender's partner and schedules
// the delayed failsafe dispatch to the partner's external channel.
// Returns domain.ErrSessionNotFound for unknown link codes and
// domain.ErrNotPaired while the second slot is still empty.
func (s *Service) Ping(ctx context.Context, linkCode, senderName string, payload json.RawMessage) (PingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, linkCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		metrics.PingsTotal.WithLabelValues("no_session").Inc()
		return PingResult{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return PingResult{}, fmt.Errorf("failed to load session: %w", err)
	}

	if !session.Connected() {
		metrics.PingsTotal.WithLabelValues("not_paired").Inc()
		return PingResult{}, domain.ErrNotPaired
	}

	partner, ok := session.Partner(senderName)
	if !ok {
		// Tolerated like the permissive registry: no queue entry and no
		// failsafe, since no partner can be resolved.
		metrics.PingsTotal.WithLabelValues("unknown_sender").Inc()
		slog.InfoContext(ctx, "Ping from unregistered name ignored",
			"link_code", linkCode, "sender", senderName)
		return PingResult{Queued: false}, nil
	}

	now := s.clock.Now()
	session.Enqueue(domain.Notification{
		SenderName:    senderName,
		RecipientName: partner.Name,
		CreatedAt:     now,
		Payload:       payload,
	})
	session.UpdatedAt = now
	if err := s.store.Put(ctx, session); err != nil {
		return PingResult{}, fmt.Errorf("failed to store session: %w", err)
	}

	metrics.PingsTotal.WithLabelValues("queued").Inc()

	if partner.ExternalChannel != "" {
		s.dispatcher.Schedule(partner.ExternalChannel, notify.Note{
			LinkCode:      linkCode,
			SenderName:    senderName,
			RecipientName: partner.Name,
			Message:       fmt.Sprintf("%s is thinking of you", senderName),
			SentAt:        now,
		})
	}

	return PingResult{Queued: true}, nil
}

// CheckResult is the poll answer. Payload is the most recently enqueued
// payload among the drained notifications, nil if none carried one.
type CheckResult struct {
	HasNotification bool
	Payload         json.RawMessage
}

// Check drains every pending notification addressed to recipientName.
// Unknown link codes are not an error; the poller simply has nothing.
func (s *Service) Check(ctx context.Context, linkCode, recipientName string) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, linkCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		metrics.ChecksTotal.WithLabelValues("no_session").Inc()
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to load session: %w", err)
	}

	payload, found := session.Drain(recipientName)
	if !found {
		metrics.ChecksTotal.WithLabelValues("empty").Inc()
		return CheckResult{}, nil
	}

	session.UpdatedAt = s.clock.Now()
	if err := s.store.Put(ctx, session); err != nil {
		return CheckResult{}, fmt.Errorf("failed to store session: %w", err)
	}

	metrics.ChecksTotal.WithLabelValues("delivered").Inc()

	if s.opts.CancelFailsafeOnDrain {
		if n := s.dispatcher.CancelFor(linkCode, recipientName); n > 0 {
			slog.DebugContext(ctx, "Cancelled pending failsafes after drain",
				"link_code", linkCode, "recipient", recipientName, "count", n)
		}
	}

	return CheckResult{HasNotification: true, Payload: payload}, nil
}

// WriteAux overwrites the session's single auxiliary payload slot.
func (s *Service) WriteAux(ctx context.Context, linkCode string, blob json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, linkCode)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	session.AuxData = blob
	session.UpdatedAt = s.clock.Now()
	if err := s.store.Put(ctx, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	metrics.AuxWritesTotal.Inc()
	return nil
}

// ReadAux returns the auxiliary payload, or nil when the slot (or the whole
// session) does not exist. Non-destructive.
func (s *Service) ReadAux(ctx context.Context, linkCode string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, linkCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session.AuxData, nil
}

// RegisteredNames returns the occupied slot names and whether the session exists.
func (s *Service) RegisteredNames(ctx context.Context, linkCode string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, linkCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return []string{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	return session.Names(), true, nil
}

// SessionCount returns the number of sessions in the store.
func (s *Service) SessionCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) updateSessionGauge(ctx context.Context) {
	if n, err := s.store.Count(ctx); err == nil {
		metrics.SessionsCurrent.Set(float64(n))
	}
}
