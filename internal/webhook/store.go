package webhook

import (
	"context"

	id "tml/pkg/domain"
)

// Store holds webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	ListActiveForEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}

// DeadLetterSink collects deliveries that exhausted every attempt.
type DeadLetterSink interface {
	Record(ctx context.Context, letter DeadLetter) error
	List(ctx context.Context) ([]DeadLetter, error)
	Clear(ctx context.Context) error
}
