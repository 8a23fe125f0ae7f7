// Package booking is the slot-availability and booking-consistency engine:
// it computes bookable slots from business hours and existing reservations
// and reserves slots atomically against concurrent callers.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marge-app/booking/internal/availability"
	"github.com/marge-app/booking/internal/hours"
	"github.com/marge-app/booking/internal/model"
)

// SlotDurationMins is the fixed appointment length.
const SlotDurationMins = 60

const cancelReason = "Cancelled by client via chat"

// Event types written to the outbox alongside bookings and cancellations.
const (
	EventAppointmentScheduled = "booking.appointment.scheduled.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

type BookingRequest struct {
	BusinessID  string
	Date        string
	Time        string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
}

// AvailableSlots returns the open "HH:MM" starts for a date, ascending.
// Malformed business hours resolve to an empty list: an ops error in
// configuration must not invent bookable time.
func (s *Service) AvailableSlots(ctx context.Context, businessID, date string, pref availability.Preference) ([]string, error) {
	day, err := time.Parse(model.DateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	biz, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		if errors.Is(err, ErrBusinessNotFound) {
			return nil, err
		}
		return nil, persistErr("query", err)
	}

	rng, open, err := hours.Resolve(biz.Hours, day)
	if err != nil {
		s.logger.Warn("business hours misconfigured, treating day as closed",
			"business_id", businessID, "date", date, "err", err)
		return []string{}, nil
	}
	if !open {
		return []string{}, nil
	}

	starts := availability.CandidateSlots(rng.Open, rng.Close, SlotDurationMins, pref)
	if len(starts) == 0 {
		return []string{}, nil
	}

	occupied, err := s.store.OccupiedTimes(ctx, businessID, date)
	if err != nil {
		return nil, persistErr("query", err)
	}

	slots := make([]string, 0, len(starts))
	for _, start := range starts {
		tm := hours.Clock(start)
		if _, taken := occupied[tm]; taken {
			continue
		}
		slots = append(slots, tm)
	}
	return slots, nil
}

// IsSlotAvailable is the advisory standalone check. The result can go stale
// between check and booking; Book re-verifies inside its transaction.
func (s *Service) IsSlotAvailable(ctx context.Context, businessID, date, tm string) (bool, error) {
	date, tm, err := normalizeSlot(date, tm)
	if err != nil {
		return false, err
	}
	taken, err := s.store.SlotTaken(ctx, businessID, date, tm)
	if err != nil {
		return false, persistErr("query", err)
	}
	return !taken, nil
}

// Book reserves a slot atomically. Exactly one of any set of concurrent
// calls for the same (business, date, time) succeeds; the rest get
// ErrSlotUnavailable from the store's uniqueness constraint, not from
// check-then-insert logic.
func (s *Service) Book(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	date, tm, err := normalizeSlot(req.Date, req.Time)
	if err != nil {
		return model.Appointment{}, err
	}

	var (
		appt     model.Appointment
		clientID string
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		taken, err := tx.SlotTaken(ctx, req.BusinessID, date, tm)
		if err != nil {
			return persistErr("query", err)
		}
		if taken {
			return ErrSlotUnavailable
		}

		client, err := s.resolveClient(ctx, tx, req)
		if err != nil {
			return err
		}
		clientID = client.ID

		appt, err = tx.CreateAppointment(ctx, model.Appointment{
			BusinessID:   req.BusinessID,
			ClientID:     client.ID,
			Date:         date,
			Time:         tm,
			DurationMins: SlotDurationMins,
			Status:       model.StatusScheduled,
			Notes:        req.Notes,
		})
		if err != nil {
			if errors.Is(err, ErrSlotUnavailable) {
				// Lost the race after the advisory check passed.
				return ErrSlotUnavailable
			}
			return persistErr("appointment", err)
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"business_id":    appt.BusinessID,
			"client_id":      appt.ClientID,
			"client_email":   req.ClientEmail,
			"date":           appt.Date,
			"time":           appt.Time,
			"duration_mins":  appt.DurationMins,
		})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := tx.AppendEvent(ctx, EventAppointmentScheduled, appt.ID, payload); err != nil {
			return persistErr("event", err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.refreshClientStats(ctx, clientID)
	return appt, nil
}

// resolveClient finds or creates the client for (business, email). A supplied
// phone that differs from the stored one updates both phone and name
// (most-recent-wins).
func (s *Service) resolveClient(ctx context.Context, tx Tx, req BookingRequest) (model.Client, error) {
	client, err := tx.FindClientByEmail(ctx, req.BusinessID, req.ClientEmail)
	if err == nil {
		if req.ClientPhone != "" && req.ClientPhone != client.Phone {
			if err := tx.UpdateClientContact(ctx, client.ID, req.ClientName, req.ClientPhone); err != nil {
				return model.Client{}, persistErr("client", err)
			}
			client.Name = req.ClientName
			client.Phone = req.ClientPhone
		}
		return client, nil
	}
	if !errors.Is(err, ErrClientNotFound) {
		return model.Client{}, persistErr("client", err)
	}

	created, err := tx.UpsertClient(ctx, model.Client{
		BusinessID:        req.BusinessID,
		Name:              req.ClientName,
		Email:             req.ClientEmail,
		Phone:             req.ClientPhone,
		FirstVisit:        s.today(),
		TotalAppointments: 0,
	})
	if err != nil {
		return model.Client{}, persistErr("client", err)
	}
	return created, nil
}

// Cancel transitions one appointment to cancelled. With an explicit id the
// appointment is looked up directly; otherwise the client's soonest upcoming
// appointment is selected. Cancelling an already-cancelled appointment is
// rejected, not repeated.
func (s *Service) Cancel(ctx context.Context, businessID, clientEmail, appointmentID string) (model.Appointment, error) {
	var cancelled model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		var appt model.Appointment
		var err error
		if appointmentID != "" {
			appt, err = tx.AppointmentForUpdate(ctx, businessID, appointmentID)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return err
				}
				return persistErr("query", err)
			}
			if appt.Status == model.StatusCancelled {
				return ErrAlreadyCancelled
			}
		} else {
			client, err := tx.FindClientByEmail(ctx, businessID, clientEmail)
			if err != nil {
				if errors.Is(err, ErrClientNotFound) {
					return err
				}
				return persistErr("query", err)
			}
			appt, err = tx.NextUpcomingForClient(ctx, client.ID, s.today())
			if err != nil {
				if errors.Is(err, ErrNoUpcomingAppointment) {
					return err
				}
				return persistErr("query", err)
			}
		}

		cancelled, err = tx.CancelAppointment(ctx, appt.ID, cancelReason)
		if err != nil {
			return persistErr("appointment", err)
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": cancelled.ID,
			"business_id":    cancelled.BusinessID,
			"client_id":      cancelled.ClientID,
			"date":           cancelled.Date,
			"time":           cancelled.Time,
			"reason":         cancelReason,
		})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := tx.AppendEvent(ctx, EventAppointmentCancelled, cancelled.ID, payload); err != nil {
			return persistErr("event", err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.refreshClientStats(ctx, cancelled.ClientID)
	return cancelled, nil
}

// Find returns the client's non-cancelled appointments with date >= today,
// ascending. A known client with nothing upcoming gets an empty list; only an
// unknown email is ErrClientNotFound.
func (s *Service) Find(ctx context.Context, businessID, clientEmail string) ([]model.Appointment, error) {
	client, err := s.store.FindClientByEmail(ctx, businessID, clientEmail)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, persistErr("query", err)
	}
	appts, err := s.store.ListUpcomingByClient(ctx, client.ID, s.today())
	if err != nil {
		return nil, persistErr("query", err)
	}
	return appts, nil
}

// UpdateStatus is the staff transition between scheduled, confirmed,
// completed and no_show. Cancellation is rejected here so it always goes
// through Cancel, which stamps metadata and refreshes statistics.
func (s *Service) UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.AppointmentStatus) (model.Appointment, error) {
	if !status.Valid() || status == model.StatusCancelled {
		return model.Appointment{}, ErrStatusNotAllowed
	}

	var updated model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, businessID, appointmentID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return persistErr("query", err)
		}
		if appt.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}
		updated, err = tx.UpdateAppointmentStatus(ctx, businessID, appointmentID, status)
		if err != nil {
			return persistErr("appointment", err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

// ListAppointments is the staff dashboard listing with optional date and
// status filters.
func (s *Service) ListAppointments(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	if date != "" {
		if _, err := time.Parse(model.DateFormat, date); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	appts, err := s.store.ListByBusiness(ctx, businessID, date, status)
	if err != nil {
		return nil, persistErr("query", err)
	}
	return appts, nil
}

func (s *Service) ListClients(ctx context.Context, businessID, search string) ([]model.Client, error) {
	clients, err := s.store.ListClients(ctx, businessID, search)
	if err != nil {
		return nil, persistErr("query", err)
	}
	return clients, nil
}

// refreshClientStats recomputes the derived client counters after a commit.
// The appointment row is the source of truth; a failed recompute logs and
// self-heals on the next booking or cancellation.
func (s *Service) refreshClientStats(ctx context.Context, clientID string) {
	if clientID == "" {
		return
	}
	if err := s.store.RecomputeClientStats(ctx, clientID); err != nil {
		s.logger.Warn("client stats recompute failed", "client_id", clientID, "err", err)
	}
}

func (s *Service) today() string {
	return s.now().Format(model.DateFormat)
}

func normalizeSlot(date, tm string) (string, string, error) {
	if _, err := time.Parse(model.DateFormat, date); err != nil {
		return "", "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	mins, err := hours.ParseClock(tm)
	if err != nil {
		return "", "", fmt.Errorf("invalid time %q: %w", tm, err)
	}
	return date, hours.Clock(mins), nil
}
