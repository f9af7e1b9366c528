package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

type PgxOutboxRepository struct {
	pool *pgxpool.Pool
}

// newPgxOutboxRepository creates a new repository for staged domain events.
func newPgxOutboxRepository(pool *pgxpool.Pool) portsrepo.OutboxRepositoryFacade {
	return &PgxOutboxRepository{pool: pool}
}

var _ portsrepo.OutboxRepositoryFacade = (*PgxOutboxRepository)(nil)

// StageEventInTx inserts a pending event within tx so it commits or rolls
// back together with the state change it describes.
func (r *PgxOutboxRepository) StageEventInTx(ctx context.Context, tx pgx.Tx, event domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_id, event_type, aggregate_id, payload, status, attempts, last_error, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := tx.Exec(ctx, query,
		event.EventID,
		event.EventType,
		event.AggregateID,
		event.Payload,
		event.Status,
		event.Attempts,
		event.LastError,
		event.PublishedAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to stage outbox event %s: %w", event.EventID, err)
	}
	return nil
}

// ListPending retrieves pending events oldest first.
func (r *PgxOutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT event_id, event_type, aggregate_id, payload, status, attempts, last_error, published_at, created_at
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT $1;
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox events: %w", err)
	}
	defer rows.Close()

	events := []domain.OutboxEvent{}
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(
			&e.EventID,
			&e.EventType,
			&e.AggregateID,
			&e.Payload,
			&e.Status,
			&e.Attempts,
			&e.LastError,
			&e.PublishedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox event rows: %w", err)
	}
	return events, nil
}

// MarkPublished records a successful publish.
func (r *PgxOutboxRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = 'PUBLISHED', published_at = $2, last_error = ''
		WHERE event_id = $1;
	`
	cmdTag, err := r.pool.Exec(ctx, query, eventID, at)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s published: %w", eventID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed publish attempt. The event stays pending until
// the attempt cap, then moves to FAILED for operator attention.
func (r *PgxOutboxRepository) MarkFailed(ctx context.Context, eventID string, attempts int, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = CASE WHEN $2 >= 5 THEN 'FAILED' ELSE status END, attempts = $2, last_error = $3
		WHERE event_id = $1;
	`
	cmdTag, err := r.pool.Exec(ctx, query, eventID, attempts, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s failed: %w", eventID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
