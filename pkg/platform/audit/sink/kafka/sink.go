// Package kafka publishes audit events to a Kafka topic so compliance
// consumers can build their own retention pipelines.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "tml/pkg/platform/audit"
)

// Sink produces one JSON record per audit event, keyed by entity id so all
// events for an entity land in the same partition in order.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects to the brokers and ensures the topic exists. A missing topic
// on first boot is the common case in fresh environments.
func New(ctx context.Context, brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka audit sink: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is fine; anything else is surfaced at boot.
		if !isTopicExists(err) {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic %q: %w", topic, err)
		}
	}

	return &Sink{client: client, topic: topic}, nil
}

type record struct {
	Timestamp     string         `json:"timestamp"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Action        string         `json:"action"`
	ActorIdentity string         `json:"actor_identity"`
	Payload       map[string]any `json:"payload,omitempty"`
}

func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(record{
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		Action:        event.Action,
		ActorIdentity: event.ActorIdentity,
		Payload:       event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	res := s.client.ProduceSync(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.EntityID),
		Value: value,
	})
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

func isTopicExists(err error) bool {
	if err == nil {
		return false
	}
	// kadm surfaces TOPIC_ALREADY_EXISTS in the error string; franz-go does
	// not export a sentinel for per-topic create responses.
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
