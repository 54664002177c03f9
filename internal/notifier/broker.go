// Package notifier implements the at-least-once broker that fans note
// creation events out to conversion workers.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/galdr/internal/models"
)

// ErrClosed is returned by Publish after the broker has stopped.
var ErrClosed = errors.New("notifier: closed")

// Handler consumes one delivery of a creation event. attempt starts at 1 and
// counts every delivery of the same event to the same handler. A nil return
// acknowledges the delivery; an error schedules redelivery with exponential
// backoff until the attempt budget is exhausted.
type Handler func(ctx context.Context, ev models.CreationEvent, attempt int) error

// Config controls queueing and redelivery behaviour.
type Config struct {
	QueueSize   int           // buffered publish/retry capacity
	Workers     int           // concurrent deliveries
	MaxAttempts int           // delivery attempts per event and handler
	BackoffBase time.Duration // first redelivery delay, doubled per attempt
	BackoffMax  time.Duration // redelivery delay ceiling
}

type delivery struct {
	ev      models.CreationEvent
	handler Handler
	attempt int
}

// Broker queues creation events and delivers them to subscribed handlers
// through a bounded worker pool.
//
// Concurrency model: the Run loop is the only goroutine that touches the
// pending queue. Publish and redelivery timers communicate with it through
// channels; handlers execute on the worker pool, never inside the loop.
// Delivery is at-least-once: a handler that fails (or a process that
// restarts and republishes) sees the same event again.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	handlers []Handler

	publishCh chan models.CreationEvent
	retryCh   chan delivery
	stopped   chan struct{}
}

// NewBroker creates a broker. Run must be called to start delivery.
func NewBroker(cfg Config, logger *slog.Logger) *Broker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	return &Broker{
		cfg:       cfg,
		logger:    logger,
		publishCh: make(chan models.CreationEvent, cfg.QueueSize),
		retryCh:   make(chan delivery, cfg.QueueSize),
		stopped:   make(chan struct{}),
	}
}

// Subscribe registers a handler. Must be called before Run.
func (b *Broker) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues a creation event for delivery to all current subscribers.
func (b *Broker) Publish(ctx context.Context, ev models.CreationEvent) error {
	// The publish channel is buffered, so the send below could win a race
	// against a closed broker; check stopped first.
	select {
	case <-b.stopped:
		return ErrClosed
	default:
	}

	select {
	case b.publishCh <- ev:
		return nil
	case <-b.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives delivery until ctx is cancelled. It owns the pending queue and
// feeds a pool of cfg.Workers delivery goroutines.
func (b *Broker) Run(ctx context.Context) error {
	defer close(b.stopped)

	dispatchCh := make(chan delivery)
	g, wctx := errgroup.WithContext(ctx)
	for i := 0; i < b.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-wctx.Done():
					return nil
				case d := <-dispatchCh:
					b.deliver(wctx, d)
				}
			}
		})
	}

	var queue []delivery
	for {
		// Only offer a dispatch when something is queued.
		var (
			out  chan delivery
			head delivery
		)
		if len(queue) > 0 {
			out = dispatchCh
			head = queue[0]
		}

		select {
		case <-ctx.Done():
			return g.Wait()
		case ev := <-b.publishCh:
			b.mu.Lock()
			handlers := b.handlers
			b.mu.Unlock()
			for _, h := range handlers {
				queue = append(queue, delivery{ev: ev, handler: h, attempt: 1})
			}
		case d := <-b.retryCh:
			queue = append(queue, d)
		case out <- head:
			queue = queue[1:]
		}
	}
}

// deliver invokes the handler and schedules redelivery on failure.
func (b *Broker) deliver(ctx context.Context, d delivery) {
	err := d.handler(ctx, d.ev, d.attempt)
	if err == nil {
		return
	}
	if d.attempt >= b.cfg.MaxAttempts {
		b.logger.Warn("dropping event after final delivery attempt",
			slog.String("note_id", d.ev.NoteID),
			slog.Int("attempt", d.attempt),
			slog.String("error", err.Error()))
		return
	}

	delay := b.backoff(d.attempt)
	b.logger.Debug("scheduling redelivery",
		slog.String("note_id", d.ev.NoteID),
		slog.Int("attempt", d.attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()))

	next := delivery{ev: d.ev, handler: d.handler, attempt: d.attempt + 1}
	time.AfterFunc(delay, func() {
		select {
		case b.retryCh <- next:
		case <-b.stopped:
		}
	})
}

// backoff returns the delay before redelivering attempt+1: base doubled per
// prior attempt, capped at BackoffMax.
func (b *Broker) backoff(attempt int) time.Duration {
	d := b.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.cfg.BackoffMax {
			return b.cfg.BackoffMax
		}
	}
	if d > b.cfg.BackoffMax {
		return b.cfg.BackoffMax
	}
	return d
}
