package booking

import (
	"context"

	"github.com/marge-app/booking/internal/model"
)

// Store is the durable state the engine runs against. Implementations must
// provide a uniqueness guarantee for (business, date, time) across
// non-cancelled appointments: CreateAppointment on an occupied slot returns
// ErrSlotUnavailable even when two transactions race. In-process locking is
// not enough, the arbiter has to live in the store.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)

	// OccupiedTimes returns the set of "HH:MM" starts taken by non-cancelled
	// appointments on the given date.
	OccupiedTimes(ctx context.Context, businessID, date string) (map[string]struct{}, error)

	// SlotTaken is the advisory single-slot check used for display. Booking
	// re-checks inside its transaction.
	SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error)

	// InTx runs fn inside one atomic unit of work. fn returning an error
	// rolls everything back and the error is returned as-is.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error)

	// RecomputeClientStats rebuilds total_appointments and last_visit from
	// the client's non-cancelled appointment rows. Derived data: callers may
	// treat failure as non-fatal.
	RecomputeClientStats(ctx context.Context, clientID string) error

	ListUpcomingByClient(ctx context.Context, clientID, fromDate string) ([]model.Appointment, error)
	ListByBusiness(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error)
	ListClients(ctx context.Context, businessID, search string) ([]model.Client, error)
}

// Tx is the transaction-scoped slice of the store.
type Tx interface {
	SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error)
	FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error)
	UpsertClient(ctx context.Context, c model.Client) (model.Client, error)
	UpdateClientContact(ctx context.Context, clientID, name, phone string) error

	// CreateAppointment inserts the row and returns ErrSlotUnavailable when
	// the store's uniqueness constraint rejects it.
	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)

	// AppointmentForUpdate loads and locks one appointment within a business.
	AppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)

	// NextUpcomingForClient locks the client's non-cancelled appointment with
	// the earliest date >= fromDate, ties broken by earliest time.
	NextUpcomingForClient(ctx context.Context, clientID, fromDate string) (model.Appointment, error)

	CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, businessID, appointmentID string, status model.AppointmentStatus) (model.Appointment, error)

	// AppendEvent records an integration event in the same unit of work, to
	// be published after commit.
	AppendEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error
}
