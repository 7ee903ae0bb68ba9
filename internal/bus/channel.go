package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBufferSize  = 256
	defaultMaxAttempts = 3
)

// ChannelBus is the in-process bus used when all stages run in one
// binary. Failed handlers get the message redelivered until the attempt
// limit, then the message is dropped with a log line.
type ChannelBus struct {
	mu          sync.Mutex
	topics      map[string]chan Envelope
	bufferSize  int
	maxAttempts int
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{
		topics:      make(map[string]chan Envelope),
		bufferSize:  defaultBufferSize,
		maxAttempts: defaultMaxAttempts,
	}
}

func (b *ChannelBus) topic(name string) chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan Envelope, b.bufferSize)
		b.topics[name] = ch
	}
	return ch
}

func (b *ChannelBus) Publish(ctx context.Context, topic, incidentID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		ID:          uuid.NewString(),
		Topic:       topic,
		IncidentID:  incidentID,
		Payload:     raw,
		PublishedAt: time.Now().UTC(),
	}

	select {
	case b.topic(topic) <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBus) Consume(ctx context.Context, topic string, handler Handler) error {
	ch := b.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-ch:
			if err := handler(ctx, env); err != nil {
				b.redeliver(ctx, ch, env, err)
			}
		}
	}
}

func (b *ChannelBus) redeliver(ctx context.Context, ch chan Envelope, env Envelope, cause error) {
	env.Attempts++
	if env.Attempts >= b.maxAttempts {
		log.Printf("[bus] dropping message %s on %s after %d attempts: %v", env.ID, env.Topic, env.Attempts, cause)
		return
	}
	log.Printf("[bus] redelivering message %s on %s (attempt %d): %v", env.ID, env.Topic, env.Attempts+1, cause)
	select {
	case ch <- env:
	case <-ctx.Done():
	}
}
