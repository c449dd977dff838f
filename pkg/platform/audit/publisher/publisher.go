// Package publisher emits audit events to a Store, optionally through an
// async buffer so audit persistence never blocks the primary operation.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "tml/pkg/platform/audit"
)

// Publisher writes audit events. In sync mode Emit appends directly (used by
// tests and the worked examples); with an async buffer Emit enqueues and a
// background goroutine drains to the store.
type Publisher struct {
	store  audit.Store
	sink   audit.Sink
	logger *slog.Logger

	inbox  chan audit.Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables background persistence with the given queue depth.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithSink tees every stored event to a downstream sink such as Kafka.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithLogger overrides the default logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Failures are logged, never returned to the caller's
// primary operation; the error return exists for sync-mode tests.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Warn("audit append failed", "action", event.Action, "error", err)
			return err
		}
		p.forward(ctx, event)
		return nil
	}
	select {
	case p.inbox <- event:
	default:
		// Queue full: drop rather than stall the caller.
		p.logger.Warn("audit queue full, dropping event", "action", event.Action)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, entityType, entityID string) ([]audit.Event, error) {
	return p.store.ListByEntity(ctx, entityType, entityID)
}

// Close flushes queued events and stops the background goroutine.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		close(p.done)
		p.wg.Wait()
		if p.sink != nil {
			p.sink.Close()
		}
	})
}

func (p *Publisher) forward(ctx context.Context, event audit.Event) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, event); err != nil {
		p.logger.Warn("audit sink publish failed", "action", event.Action, "error", err)
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			p.append(event)
		case <-p.done:
			for {
				select {
				case event := <-p.inbox:
					p.append(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) append(event audit.Event) {
	ctx := context.Background()
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Warn("audit append failed", "action", event.Action, "error", err)
		return
	}
	p.forward(ctx, event)
}
