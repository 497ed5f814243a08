package repository

import (
	"context"
	"time"

	"shop-admin/internal/domain"
)

// OutboxRepository stores domain events until the dispatcher publishes them
type OutboxRepository interface {
	// Append records an event. Called in the same transaction as the
	// mutation the event describes.
	Append(ctx context.Context, event *domain.Event) error
	// ClaimBatch leases up to limit due events for the duration of lease,
	// so concurrent workers never receive the same row, and counts the
	// attempt on each.
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*domain.Event, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, cause error, availableAt time.Time) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	// PruneDelivered deletes events published before cutoff
	PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

type outboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new instance of OutboxRepository
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Append(ctx context.Context, event *domain.Event) error {
	query := `
		INSERT INTO outbox_events (channel, event, payload, exclude_socket_id, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now().UTC()
	event.AvailableAt = now
	event.CreatedAt = now

	err := r.db.QueryRowContext(
		ctx,
		query,
		event.Channel,
		event.Name,
		string(event.Payload),
		event.ExcludeSocketID,
		event.AvailableAt,
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return domain.StorageError(err, "failed to append outbox event")
	}
	return nil
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*domain.Event, error) {
	query := `
		UPDATE outbox_events
		SET available_at = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL AND failed_at IS NULL AND available_at <= $1
			ORDER BY available_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, channel, event, payload, exclude_socket_id, attempts, last_error, available_at, created_at
	`

	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, domain.StorageError(err, "failed to claim outbox events")
	}
	defer rows.Close()

	events := []*domain.Event{}
	for rows.Next() {
		event := &domain.Event{}
		var payload string
		err := rows.Scan(
			&event.ID,
			&event.Channel,
			&event.Name,
			&payload,
			&event.ExcludeSocketID,
			&event.Attempts,
			&event.LastError,
			&event.AvailableAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, domain.StorageError(err, "failed to scan outbox event")
		}
		event.Payload = []byte(payload)
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating outbox events")
	}

	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET published_at = $2, last_error = NULL WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return domain.StorageError(err, "failed to mark outbox event published")
	}
	return nil
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id int64, cause error, availableAt time.Time) error {
	query := `UPDATE outbox_events SET last_error = $2, available_at = $3 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, errorText(cause), availableAt.UTC()); err != nil {
		return domain.StorageError(err, "failed to reschedule outbox event")
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, cause error) error {
	query := `UPDATE outbox_events SET last_error = $2, failed_at = $3 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, errorText(cause), time.Now().UTC()); err != nil {
		return domain.StorageError(err, "failed to mark outbox event failed")
	}
	return nil
}

func (r *outboxRepository) PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, domain.StorageError(err, "failed to prune outbox events")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, domain.StorageError(err, "failed to get rows affected")
	}
	return n, nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL AND failed_at IS NULL`

	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, domain.StorageError(err, "failed to count pending outbox events")
	}
	return n, nil
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
