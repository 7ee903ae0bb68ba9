// Package bus carries typed stage hand-off messages between pipeline
// workers, with at-least-once delivery.
package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Topics for stage hand-off. Each stage consumes the previous stage's
// output topic.
const (
	TopicIncidentDetected  = "incident.detected"
	TopicIncidentDiagnosed = "incident.diagnosed"
	TopicIncidentResolved  = "incident.resolved"
)

// Envelope is one message in flight.
type Envelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	IncidentID  string          `json:"incident_id"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	PublishedAt time.Time       `json:"published_at"`
}

// Handler processes one message. A nil return acknowledges the message;
// an error triggers redelivery up to the bus's attempt limit.
type Handler func(ctx context.Context, env Envelope) error

// Bus publishes and consumes stage messages.
type Bus interface {
	// Publish enqueues payload on topic. Payload is JSON-marshaled.
	Publish(ctx context.Context, topic, incidentID string, payload any) error
	// Consume delivers topic messages to handler until ctx is done.
	Consume(ctx context.Context, topic string, handler Handler) error
}
