package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/database"
)

// outboxClaimTTL is how long a claimed message stays invisible to other workers
const outboxClaimTTL = 30 * time.Second

// execer is satisfied by *pgxpool.Pool and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL
type PostgresOutboxRepository struct {
	db *database.PostgresDB
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(db *database.PostgresDB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// Create creates a new outbox message
func (r *PostgresOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	return insertOutbox(ctx, r.db.Pool(), msg)
}

func insertOutbox(ctx context.Context, db execer, msg *domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	query := `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type,
			payload, topic, partition_key, status,
			retry_count, max_retries, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := db.Exec(ctx, query,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		string(msg.Status),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return nil
}

// claimQuery leases a batch of rows so concurrent workers never publish the
// same message twice while a lease is live
const claimQuery = `
	UPDATE outbox SET locked_until = NOW() + $2::interval
	WHERE id IN (
		SELECT id FROM outbox
		WHERE %s AND (locked_until IS NULL OR locked_until < NOW())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING
		id, aggregate_type, aggregate_id, event_type,
		payload, topic, partition_key, status,
		retry_count, max_retries, last_error,
		created_at, published_at
`

// GetPendingMessages claims pending messages to be published
func (r *PostgresOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return r.claim(ctx, "status = 'pending'", limit)
}

// GetFailedMessages claims failed messages that can be retried
func (r *PostgresOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return r.claim(ctx, "status = 'failed' AND retry_count < max_retries", limit)
}

func (r *PostgresOutboxRepository) claim(ctx context.Context, where string, limit int) ([]*domain.OutboxMessage, error) {
	query := fmt.Sprintf(claimQuery, where)

	rows, err := r.db.Pool().Query(ctx, query, limit, fmt.Sprintf("%d seconds", int(outboxClaimTTL.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	return scanOutboxMessages(rows)
}

// MarkAsPublished marks a message as successfully published
func (r *PostgresOutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox SET
			status = 'published',
			locked_until = NULL,
			processed_at = $2,
			published_at = $2
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark message as published: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("outbox message not found")
	}

	return nil
}

// MarkAsFailed marks a message as failed
func (r *PostgresOutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE outbox SET
			status = 'failed',
			last_error = $2,
			retry_count = retry_count + 1,
			locked_until = NULL,
			processed_at = $3
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("outbox message not found")
	}

	return nil
}

// DeletePublished deletes old published messages for cleanup
func (r *PostgresOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	query := `DELETE FROM outbox WHERE status = 'published' AND published_at < $1`

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	result, err := r.db.Pool().Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published messages: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanOutboxMessages scans rows into OutboxMessage slice
func scanOutboxMessages(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var (
			status    string
			lastError *string
		)

		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&msg.CreatedAt,
			&msg.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		msg.Status = domain.OutboxStatus(status)
		msg.LastError = deref(lastError)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

// Ensure PostgresOutboxRepository implements OutboxRepository
var _ OutboxRepository = (*PostgresOutboxRepository)(nil)
