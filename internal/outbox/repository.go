package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/marge-app/booking/libs/db"
	otelx "github.com/marge-app/booking/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages an event inside the caller's transaction so the event and the
// booking state it describes commit or roll back together. The active trace
// context rides along for the publish span.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Staged is one event row awaiting publication.
type Staged struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

// Unpublished locks up to limit pending rows in insertion order. SKIP LOCKED
// lets concurrent publishers drain disjoint batches.
func (r *Repository) Unpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Staged, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staged []Staged
	for rows.Next() {
		var s Staged
		if err := rows.Scan(&s.ID, &s.EventID, &s.AggregateID, &s.EventType, &s.Payload, &s.Traceparent, &s.Tracestate, &s.CreatedAt); err != nil {
			return nil, err
		}
		staged = append(staged, s)
	}
	return staged, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
