package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tml/internal/platform/metrics"
	id "tml/pkg/domain"
	audit "tml/pkg/platform/audit"
	"tml/pkg/platform/circuit"
)

const (
	signatureHeader = "X-TML-Signature"
	eventHeader     = "X-TML-Event"
)

// AuditPublisher mirrors the audit surface the dispatcher needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// envelope is the wire body of every delivery. The signature covers these
// exact bytes.
type envelope struct {
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp"`
}

// Dispatcher fans events out to matching subscriptions. Each subscription
// gets its own retry loop; exhausted deliveries land in the dead letter
// sink instead of blocking the emitting operation.
type Dispatcher struct {
	store       Store
	deadLetters DeadLetterSink
	client      *http.Client
	auditLog    AuditPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger

	maxAttempts int
	backoffBase time.Duration
	sync        bool
	now         func() time.Time

	wg sync.WaitGroup

	breakersMu sync.Mutex
	breakers   map[id.SubscriptionID]*circuit.Breaker
}

type DispatcherOption func(*Dispatcher)

// WithSyncDelivery makes Dispatch block until every delivery resolves.
// Used in tests and CLI tooling; the server runs async.
func WithSyncDelivery() DispatcherOption {
	return func(d *Dispatcher) { d.sync = true }
}

func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

func WithRetryPolicy(maxAttempts int, backoffBase time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.backoffBase = backoffBase
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store Store, deadLetters DeadLetterSink, auditLog AuditPublisher, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		deadLetters: deadLetters,
		client:      &http.Client{Timeout: 10 * time.Second},
		auditLog:    auditLog,
		logger:      logger,
		maxAttempts: 4,
		backoffBase: 500 * time.Millisecond,
		now:         time.Now,
		breakers:    make(map[id.SubscriptionID]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers the event to every active matching subscription. In
// async mode it returns as soon as the fan-out goroutines are launched;
// delivery failures never propagate to the emitting operation.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]any) error {
	subs, err := d.store.ListActiveForEvent(ctx, eventType)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if d.sync {
		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range subs {
			g.Go(func() error {
				d.deliverWithRetry(gctx, sub, eventType, payload, body)
				return nil
			})
		}
		return g.Wait()
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(sub *Subscription) {
			defer d.wg.Done()
			d.deliverWithRetry(context.WithoutCancel(ctx), sub, eventType, payload, body)
		}(sub)
	}
	return nil
}

// Flush blocks until in-flight async deliveries finish.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

// breakerFor returns the subscription's circuit breaker, creating it on
// first use. An endpoint that keeps exhausting the retry budget opens its
// breaker; while open, each event gets a single probe attempt instead of
// the full retry loop.
func (d *Dispatcher) breakerFor(subID id.SubscriptionID) *circuit.Breaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	b, ok := d.breakers[subID]
	if !ok {
		b = circuit.New(subID.String())
		d.breakers[subID] = b
	}
	return b
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, sub *Subscription, eventType string, payload map[string]any, body []byte) {
	breaker := d.breakerFor(sub.ID)
	attempts := d.maxAttempts
	if breaker.IsOpen() {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = d.deliver(ctx, sub, eventType, body)
		if lastErr == nil {
			if _, change := breaker.RecordSuccess(); change.Closed {
				d.logger.InfoContext(ctx, "webhook endpoint recovered",
					"subscription_id", sub.ID)
			}
			if d.metrics != nil {
				d.metrics.WebhookDeliveries.WithLabelValues(eventType, "success").Inc()
			}
			_ = d.auditLog.Emit(ctx, audit.Event{
				EntityType:    "webhook_subscription",
				EntityID:      sub.ID.String(),
				Action:        audit.ActionWebhookDelivered,
				ActorIdentity: "system",
				Payload:       map[string]any{"event_type": eventType, "status": "delivered", "attempt": attempt},
			})
			return
		}
		if attempt < attempts {
			if !sleepCtx(ctx, d.backoffBase*(1<<(attempt-1))) {
				break
			}
		}
	}

	if _, change := breaker.RecordFailure(); change.Opened {
		d.logger.WarnContext(ctx, "webhook endpoint circuit opened",
			"subscription_id", sub.ID)
	}
	d.logger.ErrorContext(ctx, "webhook delivery exhausted",
		"subscription_id", sub.ID, "event_type", eventType, "error", lastErr)
	if d.metrics != nil {
		d.metrics.WebhookDeliveries.WithLabelValues(eventType, "failure").Inc()
		d.metrics.WebhookDeadLetters.Inc()
	}
	_ = d.deadLetters.Record(ctx, DeadLetter{
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        payload,
		Attempts:       attempts,
		LastError:      lastErr.Error(),
		FailedAt:       d.now(),
	})
	_ = d.auditLog.Emit(ctx, audit.Event{
		EntityType:    "webhook_subscription",
		EntityID:      sub.ID.String(),
		Action:        audit.ActionWebhookDeadLettered,
		ActorIdentity: "system",
		Payload:       map[string]any{"event_type": eventType, "status": "failed", "deadLettered": true, "error": lastErr.Error()},
	})
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscription, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, eventType)
	req.Header.Set(signatureHeader, Sign(sub.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of the body under the subscription
// secret. Receivers recompute this over the raw request bytes.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
