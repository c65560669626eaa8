package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifykit/notifykit/pkg/notification"
)

// PostgresStore implements Store and Reader on PostgreSQL. Batches are
// bulk-loaded with COPY, which keeps large flushes cheap. The table schema
// lives in migrations/ and is applied with goose; see pkg/pg.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed audit store using an
// established pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrStoreNil
	}
	return &PostgresStore{pool: pool}, nil
}

var auditColumns = []string{
	"notification_id", "from_status", "to_status", "attempt_count",
	"channel", "correlation_id", "error_detail", "created_at",
}

// StoreBatch implements Store.
func (ps *PostgresStore) StoreBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{
			rec.NotificationID, string(rec.FromStatus), string(rec.ToStatus),
			rec.AttemptCount, string(rec.Channel), rec.CorrelationID,
			nullable(rec.ErrorDetail), rec.CreatedAt,
		}
	}

	if _, err := ps.pool.CopyFrom(ctx,
		pgx.Identifier{"notification_audit"},
		auditColumns,
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy audit batch: %w", err)
	}
	return nil
}

// ByNotification implements Reader.
func (ps *PostgresStore) ByNotification(ctx context.Context, id uuid.UUID) ([]Record, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT notification_id, from_status, to_status, attempt_count,
		       channel, correlation_id, COALESCE(error_detail, ''), created_at
		FROM notification_audit
		WHERE notification_id = $1
		ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var from, to, channel string
		if err := rows.Scan(&rec.NotificationID, &from, &to, &rec.AttemptCount,
			&channel, &rec.CorrelationID, &rec.ErrorDetail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.FromStatus = notification.Status(from)
		rec.ToStatus = notification.Status(to)
		rec.Channel = notification.Channel(channel)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
