package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Appointment is the calendar service's read model over the shared appointments
// table, carrying the per-provider sync artifacts this service owns.
type Appointment struct {
	ID          string
	BusinessID  string
	CustomerID  string
	StaffID     string
	ServiceID   string
	ServiceName string
	StartTime   time.Time
	EndTime     time.Time
	Status      AppointmentStatus
	Notes       string

	GoogleEventID    string
	MicrosoftEventID string
	AppleEventID     string
	LastSyncedAt     *time.Time
}
