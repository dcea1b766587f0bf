package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	otelx "github.com/TonyIlliano/Smallbizagent1-sub000/libs/otel"
)

const (
	insertSQL = `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// The lock clause lets several publisher replicas drain the table
	// without handing the same row to two of them.
	claimSQL = `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markSQL = `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)`
)

// Repository persists appointment lifecycle events in the same
// transaction that mutates the appointments table.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages evt on tx. The current span's trace context rides along
// in the row so the publisher can resume the trace later.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, insertSQL,
		evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Record is a staged event as read back from the outbox table.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.EventID,
		&rec.AggregateType,
		&rec.AggregateID,
		&rec.EventType,
		&rec.Payload,
		&rec.Traceparent,
		&rec.Tracestate,
		&rec.CreatedAt,
	)
	return rec, err
}

// FetchUnpublished claims up to limit undelivered rows in id order,
// skipping rows already claimed by a concurrent publisher.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, claimSQL, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRecord)
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, markSQL, ids)
	return err
}
