package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/metrics"
)

// Dispatcher schedules delayed, fire-and-forget deliveries to external
// channels. Once scheduled, a task fires after the configured delay unless
// it is cancelled or the dispatcher stops first. Errors from the sender are
// logged and swallowed.
type Dispatcher struct {
	sender  Sender
	delay   time.Duration
	timeout time.Duration
	clock   clockwork.Clock

	mu      sync.Mutex
	pending map[recipientKey]map[uuid.UUID]chan struct{}
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type recipientKey struct {
	linkCode      string
	recipientName string
}

// NewDispatcher creates a dispatcher that waits delay before each delivery
// and bounds each outbound call by timeout.
func NewDispatcher(sender Sender, delay, timeout time.Duration, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		delay:   delay,
		timeout: timeout,
		clock:   clock,
		pending: make(map[recipientKey]map[uuid.UUID]chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Schedule queues one delivery of note to channel after the dispatcher delay.
func (d *Dispatcher) Schedule(channel string, note Note) {
	key := recipientKey{linkCode: note.LinkCode, recipientName: note.RecipientName}
	taskID := uuid.New()
	cancelCh := make(chan struct{})

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.pending[key] == nil {
		d.pending[key] = make(map[uuid.UUID]chan struct{})
	}
	d.pending[key][taskID] = cancelCh
	d.wg.Add(1)
	d.mu.Unlock()

	metrics.FailsafeScheduledTotal.Inc()

	go func() {
		defer d.wg.Done()
		defer d.remove(key, taskID)

		timer := d.clock.NewTimer(d.delay)
		defer timer.Stop()

		select {
		case <-timer.Chan():
		case <-cancelCh:
			metrics.FailsafeCancelledTotal.Inc()
			return
		case <-d.stopCh:
			return
		}

		d.fire(channel, note)
	}()
}

// Dispatch delivers note to channel immediately and asynchronously. Used for
// pairing-time notifications, which have no failsafe delay.
func (d *Dispatcher) Dispatch(channel string, note Note) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.fire(channel, note)
	}()
}

// CancelFor cancels every pending task addressed to recipientName on the
// given link code and returns how many were cancelled.
func (d *Dispatcher) CancelFor(linkCode, recipientName string) int {
	key := recipientKey{linkCode: linkCode, recipientName: recipientName}

	d.mu.Lock()
	tasks := d.pending[key]
	delete(d.pending, key)
	d.mu.Unlock()

	for _, cancelCh := range tasks {
		close(cancelCh)
	}
	return len(tasks)
}

// Stop prevents new tasks, releases pending timers without firing them, and
// waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) remove(key recipientKey, taskID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if tasks := d.pending[key]; tasks != nil {
		delete(tasks, taskID)
		if len(tasks) == 0 {
			delete(d.pending, key)
		}
	}
}

func (d *Dispatcher) fire(channel string, note Note) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, channel, note); err != nil {
		// Best effort only. The ping response was sent long ago.
		slog.Warn("External notification failed",
			"link_code", note.LinkCode,
			"recipient", note.RecipientName,
			"error", err,
		)
	}
}
