package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marge-app/booking/internal/availability"
	"github.com/marge-app/booking/internal/booking"
	"github.com/marge-app/booking/internal/model"
)

// BookingService is what the handlers need from the engine.
type BookingService interface {
	AvailableSlots(ctx context.Context, businessID, date string, pref availability.Preference) ([]string, error)
	Book(ctx context.Context, req booking.BookingRequest) (model.Appointment, error)
	Cancel(ctx context.Context, businessID, clientEmail, appointmentID string) (model.Appointment, error)
	Find(ctx context.Context, businessID, clientEmail string) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.AppointmentStatus) (model.Appointment, error)
	ListAppointments(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error)
	ListClients(ctx context.Context, businessID, search string) ([]model.Client, error)
}

type BookingHandler struct {
	svc    BookingService
	logger *slog.Logger
}

func NewBookingHandler(svc BookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	BusinessID  string `json:"business_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

type cancelRequest struct {
	BusinessID    string `json:"business_id"`
	ClientEmail   string `json:"client_email"`
	AppointmentID string `json:"appointment_id"`
}

type statusRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	ID                 string `json:"id"`
	BusinessID         string `json:"business_id"`
	ClientID           string `json:"client_id,omitempty"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	DurationMinutes    int    `json:"duration_minutes"`
	Status             string `json:"status"`
	Notes              string `json:"notes,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
	ClientName         string `json:"client_name,omitempty"`
	ClientEmail        string `json:"client_email,omitempty"`
	ClientPhone        string `json:"client_phone,omitempty"`
}

type clientItem struct {
	ID                string `json:"id"`
	BusinessID        string `json:"business_id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	FirstVisit        string `json:"first_visit,omitempty"`
	LastVisit         string `json:"last_visit,omitempty"`
	TotalAppointments int    `json:"total_appointments"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// Availability serves GET /api/v1/public/availability.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || date == "" {
		http.Error(w, "business_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(model.DateFormat, date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	pref, err := availability.ParsePreference(strings.TrimSpace(r.URL.Query().Get("time_preference")))
	if err != nil {
		http.Error(w, "invalid time_preference", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), businessID, date, pref)
	if err != nil {
		h.writeServiceError(w, err, "failed to compute availability")
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// Book serves POST /api/v1/public/book.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)

	if req.BusinessID == "" || req.ClientName == "" || req.ClientEmail == "" {
		http.Error(w, "business_id, client_name and client_email are required", http.StatusBadRequest)
		return
	}
	if !strings.Contains(req.ClientEmail, "@") {
		http.Error(w, "invalid client_email", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(model.DateFormat, req.Date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookingRequest{
		BusinessID:  req.BusinessID,
		Date:        req.Date,
		Time:        req.Time,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to book appointment")
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

// Cancel serves POST /api/v1/public/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)

	if req.BusinessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	if req.ClientEmail == "" && req.AppointmentID == "" {
		http.Error(w, "client_email or appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Cancel(r.Context(), req.BusinessID, req.ClientEmail, req.AppointmentID)
	if err != nil {
		h.writeServiceError(w, err, "failed to cancel appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Find serves GET /api/v1/public/appointments.
func (h *BookingHandler) Find(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	clientEmail := strings.TrimSpace(r.URL.Query().Get("client_email"))
	if businessID == "" || clientEmail == "" {
		http.Error(w, "business_id and client_email are required", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.Find(r.Context(), businessID, clientEmail)
	if err != nil {
		h.writeServiceError(w, err, "failed to find appointments")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

// List serves GET /api/v1/appointments (staff dashboard).
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date != "" {
		if _, err := time.Parse(model.DateFormat, date); err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
	}
	status := model.AppointmentStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), businessID, date, status)
	if err != nil {
		h.writeServiceError(w, err, "failed to list appointments")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

// UpdateStatus serves POST /api/v1/appointments/status (staff dashboard).
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Status = strings.TrimSpace(req.Status)
	if req.BusinessID == "" || req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "business_id, appointment_id and status are required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), req.BusinessID, req.AppointmentID, model.AppointmentStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, err, "failed to update appointment status")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Clients serves GET /api/v1/clients (staff dashboard).
func (h *BookingHandler) Clients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	clients, err := h.svc.ListClients(r.Context(), businessID, search)
	if err != nil {
		h.writeServiceError(w, err, "failed to list clients")
		return
	}

	items := make([]clientItem, 0, len(clients))
	for _, c := range clients {
		items = append(items, clientItem{
			ID:                c.ID,
			BusinessID:        c.BusinessID,
			Name:              c.Name,
			Email:             c.Email,
			Phone:             c.Phone,
			FirstVisit:        c.FirstVisit,
			LastVisit:         c.LastVisit,
			TotalAppointments: c.TotalAppointments,
			CreatedAt:         formatTimestamp(c.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// writeServiceError maps engine errors onto response codes. User-input
// mismatches surface their message verbatim; store faults do not.
func (h *BookingHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrBusinessNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, booking.ErrClientNotFound),
		errors.Is(err, booking.ErrNoUpcomingAppointment):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrAlreadyCancelled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrStatusNotAllowed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var persist *booking.PersistError
		if errors.As(err, &persist) {
			h.logger.Error("store failure", "op", persist.Op, "err", persist.Err)
			http.Error(w, "temporary storage error, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:                 a.ID,
		BusinessID:         a.BusinessID,
		ClientID:           a.ClientID,
		Date:               a.Date,
		Time:               a.Time,
		DurationMinutes:    a.DurationMins,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancellationReason: a.CancelReason,
		CreatedAt:          formatTimestamp(a.CreatedAt),
		ClientName:         a.ClientName,
		ClientEmail:        a.ClientEmail,
		ClientPhone:        a.ClientPhone,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	return items
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
