// Package storage is the Postgres implementation of the booking store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marge-app/booking/internal/booking"
	"github.com/marge-app/booking/internal/model"
	"github.com/marge-app/booking/internal/outbox"
	"github.com/marge-app/booking/libs/db"
)

// Weekday keys as stored in the business_hours JSON, indexed by time.Weekday.
var weekdayKeys = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

type Repository struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewRepository(pool *db.Pool, events *outbox.Repository) *Repository {
	return &Repository{pool: pool, events: events}
}

var _ booking.Store = (*Repository)(nil)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	var (
		biz      model.Business
		rawHours map[string]string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, business_hours
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&biz.ID, &biz.Name, &rawHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Business{}, booking.ErrBusinessNotFound
		}
		return model.Business{}, err
	}
	for wd, key := range weekdayKeys {
		biz.Hours[wd] = rawHours[key]
	}
	return biz, nil
}

func (r *Repository) OccupiedTimes(ctx context.Context, businessID, date string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char("time", 'HH24:MI')
		FROM appointments
		WHERE business_id = $1
			AND "date" = $2::date
			AND status <> 'cancelled'
	`, businessID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make(map[string]struct{})
	for rows.Next() {
		var tm string
		if err := rows.Scan(&tm); err != nil {
			return nil, err
		}
		occupied[tm] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return occupied, nil
}

func (r *Repository) SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error) {
	return slotTaken(ctx, r.pool, businessID, date, tm)
}

func (r *Repository) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txRepo{tx: tx, events: r.events}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error) {
	return findClientByEmail(ctx, r.pool, businessID, email)
}

func (r *Repository) RecomputeClientStats(ctx context.Context, clientID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clients c
		SET total_appointments = s.total,
			last_visit = s.last_date,
			updated_at = now()
		FROM (
			SELECT count(*) AS total, max("date") AS last_date
			FROM appointments
			WHERE client_id = $1 AND status <> 'cancelled'
		) s
		WHERE c.id = $1
	`, clientID)
	return err
}

func (r *Repository) ListUpcomingByClient(ctx context.Context, clientID, fromDate string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.client_id = $1
			AND a."date" >= $2::date
			AND a.status <> 'cancelled'
		ORDER BY a."date" ASC, a."time" ASC
	`, clientID, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows, false)
}

func (r *Repository) ListByBusiness(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	var dateParam, statusParam any
	if date != "" {
		dateParam = date
	}
	if status != "" {
		statusParam = string(status)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`,
			COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, '')
		FROM appointments a
		LEFT JOIN clients c ON c.id = a.client_id
		WHERE a.business_id = $1
			AND ($2::date IS NULL OR a."date" = $2::date)
			AND ($3::text IS NULL OR a.status = $3::text)
		ORDER BY a."date" ASC, a."time" ASC
	`, businessID, dateParam, statusParam)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows, true)
}

func (r *Repository) ListClients(ctx context.Context, businessID, search string) ([]model.Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE business_id = $1
			AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
	`, businessID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return clients, nil
}

// txRepo is the transaction-scoped store handed to the booking engine.
type txRepo struct {
	tx     pgx.Tx
	events *outbox.Repository
}

var _ booking.Tx = (*txRepo)(nil)

func (t *txRepo) SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error) {
	return slotTaken(ctx, t.tx, businessID, date, tm)
}

func (t *txRepo) FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error) {
	return findClientByEmail(ctx, t.tx, businessID, email)
}

func (t *txRepo) UpsertClient(ctx context.Context, c model.Client) (model.Client, error) {
	var firstVisit any
	if c.FirstVisit != "" {
		firstVisit = c.FirstVisit
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO clients (id, business_id, name, email, phone, first_visit, total_appointments)
		VALUES ($1, $2, $3, $4, $5, $6::date, 0)
		ON CONFLICT (business_id, email) DO UPDATE
		SET name = EXCLUDED.name,
			updated_at = now()
		RETURNING `+clientColumns+`
	`, uuid.NewString(), c.BusinessID, c.Name, c.Email, c.Phone, firstVisit)
	return scanClient(row)
}

func (t *txRepo) UpdateClientContact(ctx context.Context, clientID, name, phone string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE clients
		SET name = $2,
			phone = $3,
			updated_at = now()
		WHERE id = $1
	`, clientID, name, phone)
	return err
}

func (t *txRepo) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	var clientID any
	if a.ClientID != "" {
		clientID = a.ClientID
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, business_id, client_id, "date", "time", duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8)
		RETURNING `+appointmentColumns+`
	`, uuid.NewString(), a.BusinessID, clientID, a.Date, a.Time, a.DurationMins, a.Status, a.Notes)
	created, err := scanAppointment(row, false)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Appointment{}, booking.ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}
	return created, nil
}

func (t *txRepo) AppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.business_id = $2
		FOR UPDATE
	`, appointmentID, businessID)
	appt, err := scanAppointment(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (t *txRepo) NextUpcomingForClient(ctx context.Context, clientID, fromDate string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.client_id = $1
			AND a."date" >= $2::date
			AND a.status <> 'cancelled'
		ORDER BY a."date" ASC, a."time" ASC
		LIMIT 1
		FOR UPDATE
	`, clientID, fromDate)
	appt, err := scanAppointment(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrNoUpcomingAppointment
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (t *txRepo) CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments a
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2,
			updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, reason)
	return scanAppointment(row, false)
}

func (t *txRepo) UpdateAppointmentStatus(ctx context.Context, businessID, appointmentID string, status model.AppointmentStatus) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments a
		SET status = $3,
			updated_at = now()
		WHERE a.id = $1 AND a.business_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, businessID, status)
	appt, err := scanAppointment(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (t *txRepo) AppendEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error {
	return t.events.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func slotTaken(ctx context.Context, q querier, businessID, date, tm string) (bool, error) {
	var taken bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE business_id = $1
				AND "date" = $2::date
				AND "time" = $3::time
				AND status <> 'cancelled'
		)
	`, businessID, date, tm).Scan(&taken)
	return taken, err
}

func findClientByEmail(ctx context.Context, q querier, businessID, email string) (model.Client, error) {
	row := q.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE business_id = $1 AND lower(email) = lower($2)
	`, businessID, email)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, booking.ErrClientNotFound
		}
		return model.Client{}, err
	}
	return c, nil
}

const clientColumns = `id::text, business_id::text, name, email, phone,
	COALESCE(to_char(first_visit, 'YYYY-MM-DD'), ''),
	COALESCE(to_char(last_visit, 'YYYY-MM-DD'), ''),
	total_appointments, created_at`

func scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone,
		&c.FirstVisit, &c.LastVisit, &c.TotalAppointments, &c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

const appointmentColumns = `a.id::text, a.business_id::text, COALESCE(a.client_id::text, ''),
	to_char(a."date", 'YYYY-MM-DD'), to_char(a."time", 'HH24:MI'),
	a.duration_minutes, a.status, a.notes, a.cancelled_at,
	COALESCE(a.cancellation_reason, ''), a.created_at`

func scanAppointment(row pgx.Row, withClient bool) (model.Appointment, error) {
	var (
		a           model.Appointment
		cancelledAt *time.Time
	)
	dest := []any{&a.ID, &a.BusinessID, &a.ClientID, &a.Date, &a.Time,
		&a.DurationMins, &a.Status, &a.Notes, &cancelledAt, &a.CancelReason, &a.CreatedAt}
	if withClient {
		dest = append(dest, &a.ClientName, &a.ClientEmail, &a.ClientPhone)
	}
	if err := row.Scan(dest...); err != nil {
		return model.Appointment{}, err
	}
	a.CancelledAt = cancelledAt
	return a, nil
}

func collectAppointments(rows pgx.Rows, withClient bool) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows, withClient)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
