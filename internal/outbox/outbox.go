// Package outbox resolves the dual-write between "commit the fact" and
// "emit the event": the event intent is persisted in the same transaction
// as the triggering row, and a background drainer publishes staged rows
// and marks them sent. A broker outage therefore delays events instead of
// silently dropping them.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/ids"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	// StatusDead marks rows that exhausted their publish attempts; they
	// stay queryable for operator intervention instead of being retried
	// forever.
	StatusDead = "dead"
)

// Row is one staged event.
type Row struct {
	ID           string
	Topic        string
	PartitionKey string
	EventType    string
	Payload      []byte
	Status       string
	AttemptCount int
	CreatedAt    time.Time
	LastError    sql.NullString
}

// Store persists staged events in PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the outbox table. Safe to run at every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload BYTEA NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		locked_until TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		published_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON outbox_events (created_at)
		WHERE status = 'pending';
	`)
	if err != nil {
		return fmt.Errorf("init outbox schema: %w", err)
	}
	return nil
}

// AppendTx stages an event inside the caller's transaction so the event
// intent commits or rolls back together with the domain fact.
func (s *Store) AppendTx(ctx context.Context, tx *sql.Tx, env events.Envelope) (string, error) {
	id := ids.NewULID()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, topic, partition_key, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, env.Topic, env.PartitionKey, env.EventType, env.Payload, env.ProducedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("append outbox event: %w", err)
	}
	return id, nil
}

// claimLease is how long a claimed row stays invisible to other
// drainers. A drainer that dies mid-batch releases its rows once the
// lease expires.
const claimLease = 30 * time.Second

// ClaimPending leases up to limit pending rows for publishing. Taking
// the lease and selecting the rows happen in one statement, so
// concurrent drainers claim disjoint batches; SKIP LOCKED keeps them
// from queueing on each other's row locks.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Row, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		UPDATE outbox_events
		SET locked_until = $1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			  AND (locked_until IS NULL OR locked_until < $2)
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, partition_key, event_type, payload, status, attempt_count, created_at
	`, now.Add(claimLease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox rows: %w", err)
	}
	defer rows.Close()

	var claimed []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.Topic, &row.PartitionKey, &row.EventType, &row.Payload, &row.Status, &row.AttemptCount, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		claimed = append(claimed, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery's order; restore it so
	// rows sharing a partition key publish oldest first.
	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].CreatedAt.Equal(claimed[j].CreatedAt) {
			return claimed[i].ID < claimed[j].ID
		}
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

// MarkSent records a successful publish.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'sent', published_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark outbox row sent: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and records the error; rows that
// reach maxAttempts are marked dead instead of retried forever.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET attempt_count = attempt_count + 1,
			last_error = $2,
			locked_until = NULL,
			status = CASE WHEN attempt_count + 1 >= $3 THEN 'dead' ELSE 'pending' END
		WHERE id = $1
	`, id, cause.Error(), maxAttempts)
	if err != nil {
		return fmt.Errorf("mark outbox row failed: %w", err)
	}
	return nil
}

// PendingCount reports how many rows still await publishing; the health
// endpoint exposes it.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return count, nil
}
