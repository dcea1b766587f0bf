package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Active reports whether the appointment still occupies its time slot.
// Cancelled and completed appointments never conflict with new bookings.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type Appointment struct {
	ID         string
	BusinessID string
	CustomerID string
	StaffID    string // empty means any staff / whole business
	ServiceID  string
	StartTime  time.Time
	EndTime    time.Time
	Status     AppointmentStatus
	Notes      string

	// Per-provider sync artifacts, written back by the calendar service.
	GoogleEventID    string
	MicrosoftEventID string
	AppleEventID     string
	LastSyncedAt     *time.Time

	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}

// BusinessHours is one weekday row for a business. A missing row for a weekday is
// equivalent to closed. Minutes are counted from local midnight.
type BusinessHours struct {
	BusinessID  string
	Weekday     time.Weekday
	OpenMinute  int
	CloseMinute int
	IsClosed    bool
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	Active          bool
}
