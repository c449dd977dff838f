package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "tml/pkg/platform/audit"
	"tml/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		EntityType:    "attestation",
		EntityID:      "a-1",
		Action:        audit.ActionAttestationSubmitted,
		ActorIdentity: "inspector-1",
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "attestation", "a-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionAttestationSubmitted, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	event := audit.Event{
		EntityType:    "milestone",
		EntityID:      "m-1",
		Action:        audit.ActionMilestoneCompleted,
		ActorIdentity: "system",
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Close drains the buffer before returning.
	pub.Close()

	events, err := pub.List(context.Background(), "milestone", "m-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionMilestoneCompleted, events[0].Action)
}

type captureSink struct {
	events []audit.Event
	closed bool
}

func (c *captureSink) Publish(_ context.Context, event audit.Event) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Close() { c.closed = true }

func TestPublisher_ForwardsToSink(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &captureSink{}
	pub := NewPublisher(store, WithSink(sink))

	err := pub.Emit(context.Background(), audit.Event{
		EntityType: "dispute",
		EntityID:   "d-1",
		Action:     audit.ActionDisputeFiled,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)

	pub.Close()
	assert.True(t, sink.closed)
}
