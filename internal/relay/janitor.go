package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/metrics"
)

// Janitor periodically sweeps stale notifications out of every session,
// bounding memory growth from abandoned sessions. With a non-zero session
// TTL it also evicts sessions nobody has touched for that long; the default
// TTL of zero matches the original behavior of never deleting sessions.
type Janitor struct {
	service    *Service
	interval   time.Duration
	retention  time.Duration
	sessionTTL time.Duration
	clock      clockwork.Clock
	stopCh     chan struct{}
}

func NewJanitor(service *Service, interval, retention, sessionTTL time.Duration, clock clockwork.Clock) *Janitor {
	return &Janitor{
		service:    service,
		interval:   interval,
		retention:  retention,
		sessionTTL: sessionTTL,
		clock:      clock,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			j.sweep(ctx)
		case <-j.stopCh:
			slog.Info("Janitor stopped")
			return
		case <-ctx.Done():
			slog.Info("Janitor context cancelled")
			return
		}
	}
}

// Stop gracefully stops the sweep loop.
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) sweep(ctx context.Context) {
	start := j.clock.Now()
	notifs, sessions, err := j.service.SweepExpired(ctx, j.retention, j.sessionTTL)
	metrics.JanitorSweepDuration.Observe(j.clock.Since(start).Seconds())

	if err != nil {
		slog.Error("Janitor sweep failed", "error", err)
		return
	}
	if notifs > 0 || sessions > 0 {
		slog.Debug("Janitor sweep complete",
			"notifications_evicted", notifs,
			"sessions_evicted", sessions,
		)
	}
}

// SweepExpired removes notifications older than retention from every session
// and, when sessionTTL is non-zero, deletes sessions idle for longer than
// the TTL. Returns the eviction counts.
func (s *Service) SweepExpired(ctx context.Context, retention, sessionTTL time.Duration) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.Codes(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := s.clock.Now()
	cutoff := now.Add(-retention)

	var notifsEvicted, sessionsEvicted int
	for _, code := range codes {
		session, err := s.store.Get(ctx, code)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return notifsEvicted, sessionsEvicted, err
		}

		evicted := session.EvictOlderThan(cutoff)

		if sessionTTL > 0 && now.Sub(session.UpdatedAt) > sessionTTL {
			if err := s.store.Delete(ctx, code); err != nil {
				return notifsEvicted, sessionsEvicted, err
			}
			sessionsEvicted++
			notifsEvicted += evicted
			continue
		}

		if evicted > 0 {
			if err := s.store.Put(ctx, session); err != nil {
				return notifsEvicted, sessionsEvicted, err
			}
			notifsEvicted += evicted
		}
	}

	if notifsEvicted > 0 {
		metrics.JanitorNotificationEvictions.Add(float64(notifsEvicted))
	}
	if sessionsEvicted > 0 {
		metrics.JanitorSessionEvictions.Add(float64(sessionsEvicted))
		s.updateSessionGauge(ctx)
	}
	return notifsEvicted, sessionsEvicted, nil
}
