package model

import "time"

// Wire formats for calendar dates and clock times. All values are in the
// business-local clock; the service does not do timezone conversion.
const (
	DateFormat  = "2006-01-02"
	ClockFormat = "15:04"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status blocks its slot.
// Only cancellation frees a slot.
func (s AppointmentStatus) Occupies() bool {
	return s != StatusCancelled
}

// WeekSchedule holds one hours entry per weekday, indexed by time.Weekday
// (Sunday = 0). Each entry is "HH:MM-HH:MM" or "closed".
type WeekSchedule [7]string

type Business struct {
	ID    string
	Name  string
	Hours WeekSchedule
}

type Client struct {
	ID                string
	BusinessID        string
	Name              string
	Email             string
	Phone             string
	FirstVisit        string // date, empty if unknown
	LastVisit         string // date of most recent non-cancelled appointment
	TotalAppointments int
	CreatedAt         time.Time
}

type Appointment struct {
	ID           string
	BusinessID   string
	ClientID     string // empty until a client is resolved
	Date         string // DateFormat
	Time         string // ClockFormat
	DurationMins int
	Status       AppointmentStatus
	Notes        string
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time

	// Joined client contact fields, populated on staff listings only.
	ClientName  string
	ClientEmail string
	ClientPhone string
}
