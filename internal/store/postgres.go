// Package store persists incidents and post-mortems in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Waryjustice/azure-incident-resolver/internal/comms"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// NewPool creates a new pgx connection pool
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Println("Database connection pool established")
	return pool, nil
}

// EnsureSchema creates the tables the resolver needs if they are
// missing. Safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incidents (
			id             TEXT PRIMARY KEY,
			resource       JSONB NOT NULL,
			anomalies      JSONB NOT NULL,
			severity       TEXT NOT NULL,
			phase          TEXT NOT NULL,
			diagnosis      JSONB,
			resolution     JSONB,
			failure_reason TEXT NOT NULL DEFAULT '',
			detected_at    TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS post_mortems (
			incident_id  TEXT PRIMARY KEY REFERENCES incidents(id),
			document     JSONB NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bus_messages (
			id              TEXT PRIMARY KEY,
			topic           TEXT NOT NULL,
			incident_id     TEXT NOT NULL,
			payload         JSONB NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			attempts        INT NOT NULL DEFAULT 0,
			last_error      TEXT,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_bus_messages_claim
			ON bus_messages (topic, status, next_attempt_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Store implements incident persistence using PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SaveIncident upserts the full incident state. Called after every
// phase transition, so the row always reflects the latest state.
func (s *Store) SaveIncident(ctx context.Context, incident *domain.Incident) error {
	resource, err := json.Marshal(incident.Resource)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}
	anomalies, err := json.Marshal(incident.Anomalies)
	if err != nil {
		return fmt.Errorf("marshal anomalies: %w", err)
	}
	diagnosis, err := marshalNullable(incident.Diagnosis)
	if err != nil {
		return fmt.Errorf("marshal diagnosis: %w", err)
	}
	resolution, err := marshalNullable(incident.Resolution)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}

	query := `
		INSERT INTO incidents (id, resource, anomalies, severity, phase, diagnosis, resolution, failure_reason, detected_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			phase = EXCLUDED.phase,
			diagnosis = EXCLUDED.diagnosis,
			resolution = EXCLUDED.resolution,
			failure_reason = EXCLUDED.failure_reason,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`
	_, err = s.db.Exec(ctx, query,
		incident.ID,
		resource,
		anomalies,
		incident.Severity,
		incident.Phase,
		diagnosis,
		resolution,
		incident.FailureReason,
		incident.DetectedAt,
		incident.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (s *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, resource, anomalies, severity, phase, diagnosis, resolution, failure_reason, detected_at, completed_at
		FROM incidents
		WHERE id = $1
	`
	incident, err := scanIncident(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIncidentNotFound, id)
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListTerminal retrieves incidents that reached a terminal phase,
// newest first. A limit of zero or less means no limit.
func (s *Store) ListTerminal(ctx context.Context, limit int) ([]*domain.Incident, error) {
	query := `
		SELECT id, resource, anomalies, severity, phase, diagnosis, resolution, failure_reason, detected_at, completed_at
		FROM incidents
		WHERE phase IN ('completed', 'failed')
		ORDER BY detected_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// SavePostMortem stores the generated post-mortem document.
func (s *Store) SavePostMortem(ctx context.Context, pm *comms.PostMortem) error {
	document, err := json.Marshal(pm)
	if err != nil {
		return fmt.Errorf("marshal post-mortem: %w", err)
	}

	query := `
		INSERT INTO post_mortems (incident_id, document, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (incident_id) DO UPDATE SET
			document = EXCLUDED.document,
			generated_at = EXCLUDED.generated_at
	`
	if _, err := s.db.Exec(ctx, query, pm.IncidentID, document, pm.GeneratedAt); err != nil {
		return fmt.Errorf("save post-mortem: %w", err)
	}
	return nil
}

// GetPostMortem retrieves the post-mortem for an incident.
func (s *Store) GetPostMortem(ctx context.Context, incidentID string) (*comms.PostMortem, error) {
	var document []byte
	err := s.db.QueryRow(ctx, `
		SELECT document FROM post_mortems WHERE incident_id = $1
	`, incidentID).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: post-mortem for %s", domain.ErrIncidentNotFound, incidentID)
		}
		return nil, fmt.Errorf("get post-mortem: %w", err)
	}

	var pm comms.PostMortem
	if err := json.Unmarshal(document, &pm); err != nil {
		return nil, fmt.Errorf("decode post-mortem: %w", err)
	}
	return &pm, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch v := v.(type) {
	case *domain.Diagnosis:
		if v == nil {
			return nil, nil
		}
	case *domain.Resolution:
		if v == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*domain.Incident, error) {
	var (
		incident   domain.Incident
		resource   []byte
		anomalies  []byte
		diagnosis  []byte
		resolution []byte
	)
	err := row.Scan(
		&incident.ID,
		&resource,
		&anomalies,
		&incident.Severity,
		&incident.Phase,
		&diagnosis,
		&resolution,
		&incident.FailureReason,
		&incident.DetectedAt,
		&incident.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(resource, &incident.Resource); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if err := json.Unmarshal(anomalies, &incident.Anomalies); err != nil {
		return nil, fmt.Errorf("decode anomalies: %w", err)
	}
	if len(diagnosis) > 0 {
		if err := json.Unmarshal(diagnosis, &incident.Diagnosis); err != nil {
			return nil, fmt.Errorf("decode diagnosis: %w", err)
		}
	}
	if len(resolution) > 0 {
		if err := json.Unmarshal(resolution, &incident.Resolution); err != nil {
			return nil, fmt.Errorf("decode resolution: %w", err)
		}
	}
	return &incident, nil
}
