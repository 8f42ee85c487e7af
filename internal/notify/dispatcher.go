package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// Sender delivers one rendered event to the notification provider.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// LogSender is the default backend: it writes each event to the structured
// log. Deployments plug a real provider (email/push) behind the same
// interface; the engine never knows the difference.
type LogSender struct {
	Logger zerolog.Logger
	Locale language.Tag
}

// Send logs the event at info level.
func (s LogSender) Send(_ context.Context, ev Event) error {
	s.Logger.Info().
		Str("event", ev.Type).
		Str("appointment_id", ev.AppointmentID).
		Str("shop_id", ev.ShopID).
		Str("offer_id", ev.OfferID).
		Msg(ev.Message(s.Locale))
	return nil
}

// Dispatcher consumes events from a bounded queue on a single goroutine and
// forwards them to the Sender. Publish never blocks the caller: when the
// queue is full the event is counted as dropped and discarded, because a slow
// notification provider must not back-pressure workflow transitions.
type Dispatcher struct {
	sender Sender
	logger zerolog.Logger

	ch   chan Event
	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	dropped int64
}

// NewDispatcher builds a dispatcher with the given queue capacity.
// Capacities < 1 are coerced to 1.
func NewDispatcher(sender Sender, logger zerolog.Logger, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		ch:     make(chan Event, buffer),
		stop:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Call Stop to drain and shut down.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop signals the consumer and waits for it to finish the event in flight.
// Events still queued at shutdown are dropped, consistent with the
// fire-and-forget contract.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Publish enqueues an event without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case d.ch <- ev:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn().
			Str("event", ev.Type).
			Str("appointment_id", ev.AppointmentID).
			Msg("notification queue full, event dropped")
	}
}

// Dropped returns how many events were discarded due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case ev := <-d.ch:
			// Failures are logged and swallowed; the transition that
			// produced the event already committed.
			if err := d.sender.Send(ctx, ev); err != nil {
				d.logger.Error().
					Err(err).
					Str("event", ev.Type).
					Str("appointment_id", ev.AppointmentID).
					Msg("notification delivery failed")
			}
		}
	}
}
