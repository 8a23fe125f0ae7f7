package storage

import (
	"context"

	"github.com/marge-app/booking/libs/db"
)

// The partial unique index on appointments is the arbiter for concurrent
// bookings: only one non-cancelled row may exist per (business, date, time).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS businesses (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	business_hours JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clients (
	id UUID PRIMARY KEY,
	business_id UUID NOT NULL REFERENCES businesses(id),
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	first_visit DATE,
	last_visit DATE,
	total_appointments INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business_id, email)
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	business_id UUID NOT NULL REFERENCES businesses(id),
	client_id UUID REFERENCES clients(id),
	"date" DATE NOT NULL,
	"time" TIME NOT NULL,
	duration_minutes INT NOT NULL DEFAULT 60,
	status TEXT NOT NULL DEFAULT 'scheduled'
		CHECK (status IN ('scheduled', 'confirmed', 'completed', 'cancelled', 'no_show')),
	notes TEXT NOT NULL DEFAULT '',
	cancelled_at TIMESTAMPTZ,
	cancellation_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_slot_unique
	ON appointments (business_id, "date", "time")
	WHERE status <> 'cancelled';

CREATE INDEX IF NOT EXISTS appointments_client_date_idx
	ON appointments (client_id, "date");

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);
`

func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// SeedDemoBusiness inserts the demo business used by local development and
// the hosted demo. Idempotent.
func SeedDemoBusiness(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO businesses (id, name, business_hours)
		VALUES (
			'00000000-0000-0000-0000-000000000001',
			'Marge Demo Salon',
			'{
				"mon": "09:00-17:00",
				"tue": "09:00-17:00",
				"wed": "09:00-17:00",
				"thu": "09:00-17:00",
				"fri": "09:00-17:00",
				"sat": "10:00-14:00",
				"sun": "closed"
			}'::jsonb
		)
		ON CONFLICT (id) DO NOTHING
	`)
	return err
}
