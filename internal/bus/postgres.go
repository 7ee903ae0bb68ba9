package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultBatchSize      = 50
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// PostgresBusConfig tunes the durable queue.
type PostgresBusConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PostgresBus is the durable bus used when stages run as separate
// workers. Messages live in bus_messages rows; claims use FOR UPDATE
// SKIP LOCKED so concurrent consumers never double-claim, and failed
// handlers reschedule the row with exponential backoff.
type PostgresBus struct {
	pool   *pgxpool.Pool
	config PostgresBusConfig
}

func NewPostgresBus(pool *pgxpool.Pool, cfg PostgresBusConfig) *PostgresBus {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &PostgresBus{pool: pool, config: cfg}
}

func (b *PostgresBus) Publish(ctx context.Context, topic, incidentID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO bus_messages (id, topic, incident_id, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, NOW())
	`, uuid.NewString(), topic, incidentID, raw)
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

func (b *PostgresBus) Consume(ctx context.Context, topic string, handler Handler) error {
	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.processBatch(ctx, topic, handler); err != nil {
				log.Printf("[bus] batch on %s failed: %v", topic, err)
			}
		}
	}
}

func (b *PostgresBus) processBatch(ctx context.Context, topic string, handler Handler) error {
	envelopes, err := b.claim(ctx, topic)
	if err != nil {
		return err
	}
	for _, env := range envelopes {
		if err := handler(ctx, env); err != nil {
			b.reschedule(ctx, env, err)
			continue
		}
		if _, err := b.pool.Exec(ctx, `
			UPDATE bus_messages SET status = 'done', updated_at = NOW() WHERE id = $1
		`, env.ID); err != nil {
			log.Printf("[bus] ack message %s failed: %v", env.ID, err)
		}
	}
	return nil
}

func (b *PostgresBus) claim(ctx context.Context, topic string) ([]Envelope, error) {
	rows, err := b.pool.Query(ctx, `
		UPDATE bus_messages
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bus_messages
			WHERE topic = $1 AND status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, incident_id, payload, attempts, created_at
	`, topic, b.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	defer rows.Close()

	var envelopes []Envelope
	for rows.Next() {
		var env Envelope
		if err := rows.Scan(&env.ID, &env.Topic, &env.IncidentID, &env.Payload, &env.Attempts, &env.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, rows.Err()
}

func (b *PostgresBus) reschedule(ctx context.Context, env Envelope, cause error) {
	attempts := env.Attempts + 1
	if attempts >= b.config.MaxAttempts {
		log.Printf("[bus] message %s on %s failed permanently after %d attempts: %v", env.ID, env.Topic, attempts, cause)
		if _, err := b.pool.Exec(ctx, `
			UPDATE bus_messages SET status = 'failed', attempts = $2, last_error = $3, updated_at = NOW() WHERE id = $1
		`, env.ID, attempts, cause.Error()); err != nil {
			log.Printf("[bus] mark message %s failed: %v", env.ID, err)
		}
		return
	}

	next := time.Now().Add(b.backoff(attempts))
	log.Printf("[bus] message %s on %s scheduled for retry %d at %s: %v", env.ID, env.Topic, attempts, next.Format(time.RFC3339), cause)
	if _, err := b.pool.Exec(ctx, `
		UPDATE bus_messages
		SET status = 'pending', attempts = $2, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE id = $1
	`, env.ID, attempts, cause.Error(), next); err != nil {
		log.Printf("[bus] reschedule message %s failed: %v", env.ID, err)
	}
}

func (b *PostgresBus) backoff(attempt int) time.Duration {
	backoff := b.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > b.config.MaxBackoff {
			return b.config.MaxBackoff
		}
	}
	return backoff
}
