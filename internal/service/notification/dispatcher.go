// Package notification fans leave lifecycle events out to subscribers.
//
// The Dispatcher implements leave.EventSink. Emit only enqueues; background
// workers hand each event to every configured Publisher.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Publisher delivers one event to a downstream channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event leave.Event) error
}

// Config holds dispatcher configuration
type Config struct {
	WorkerCount    int           // default: 2
	QueueSize      int           // default: 1000
	PublishTimeout time.Duration // default: 5 seconds
}

type Dispatcher struct {
	publishers []Publisher
	config     Config
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan leave.Event
	wg     sync.WaitGroup
}

var _ leave.EventSink = (*Dispatcher)(nil)

// NewDispatcher starts the background workers.
func NewDispatcher(logger *slog.Logger, cfg Config, publishers ...Publisher) *Dispatcher {
	// Set defaults
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		publishers: publishers,
		config:     cfg,
		logger:     logger,
		queue:      make(chan leave.Event, cfg.QueueSize),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	logger.Info("notification dispatcher started",
		slog.Int("workers", cfg.WorkerCount),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Int("publishers", len(publishers)),
	)
	return d
}

// Emit implements leave.EventSink. It never blocks: when the queue is full
// the event is dropped and ErrQueueFull returned.
func (d *Dispatcher) Emit(ctx context.Context, event leave.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the workers to drain the queue
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker delivers queued events until the queue is closed and empty.
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for event := range d.queue {
		for _, p := range d.publishers {
			d.publish(id, p, event)
		}
	}
}

func (d *Dispatcher) publish(worker int, p Publisher, event leave.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
	defer cancel()

	if err := p.Publish(ctx, event); err != nil {
		d.logger.Warn("failed to publish leave event",
			slog.Int("worker", worker),
			slog.String("publisher", p.Name()),
			slog.String("event", string(event.Name)),
			slog.String("request_id", event.RequestID),
			slog.Any("error", err),
		)
		return
	}
	d.logger.Debug("leave event published",
		slog.String("publisher", p.Name()),
		slog.String("event", string(event.Name)),
		slog.String("request_id", event.RequestID),
	)
}
