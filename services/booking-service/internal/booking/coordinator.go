package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
)

var (
	// ErrInvalidInput marks malformed requests. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSlotTaken marks a booking attempt that lost to an existing appointment.
	ErrSlotTaken = errors.New("time slot already booked")
)

// Lister reads active appointments overlapping a window.
type Lister interface {
	ListActiveBetween(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error)
}

// Store is the persistence surface the coordinator needs. The pgx implementation
// serializes CreateExclusive per (business, staff) with an advisory transaction lock
// and relies on the appointments exclusion constraint as a backstop, so two racing
// requests for the same slot can never both commit. The Lister handed to free is
// bound to the locking transaction's connection; reading through anything else there
// would need a second pool connection while the lock is held, which can exhaust the
// pool under concurrent creates for the same key.
type Store interface {
	Lister
	CreateExclusive(ctx context.Context, appt *model.Appointment, free func(context.Context, Lister) (bool, error)) error
}

// Coordinator is the sole conflict-prevention authority for appointments.
type Coordinator struct {
	store  Store
	logger *slog.Logger
}

func NewCoordinator(store Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger}
}

// IsTimeSlotAvailable reports whether [start, end) is free of active appointments for
// the business (scoped to staffID when given). Half-open intervals: appointments that
// only touch at a boundary do not conflict.
func (c *Coordinator) IsTimeSlotAvailable(ctx context.Context, businessID string, start, end time.Time, staffID string) (bool, error) {
	if businessID == "" {
		return false, fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}
	if !end.After(start) {
		return false, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}

	return slotFree(ctx, c.store, businessID, start, end, staffID)
}

func slotFree(ctx context.Context, reads Lister, businessID string, start, end time.Time, staffID string) (bool, error) {
	appts, err := reads.ListActiveBetween(ctx, businessID, staffID, start, end)
	if err != nil {
		return false, err
	}
	for _, a := range appts {
		if !a.Status.Active() {
			continue
		}
		if start.Before(a.EndTime) && end.After(a.StartTime) {
			return false, nil
		}
	}
	return true, nil
}

// CreateAppointmentSafely re-checks availability immediately before insert, under the
// store's per-(business, staff) serialization. All-or-nothing: on conflict nothing is
// persisted and ErrSlotTaken is returned.
func (c *Coordinator) CreateAppointmentSafely(ctx context.Context, appt *model.Appointment) (*model.Appointment, error) {
	if err := validateNewAppointment(appt); err != nil {
		return nil, err
	}
	appt.Status = model.StatusScheduled

	free := func(ctx context.Context, reads Lister) (bool, error) {
		return slotFree(ctx, reads, appt.BusinessID, appt.StartTime, appt.EndTime, appt.StaffID)
	}
	if err := c.store.CreateExclusive(ctx, appt, free); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			c.logger.Info("booking conflict",
				"business_id", appt.BusinessID,
				"staff_id", appt.StaffID,
				"start", appt.StartTime.Format(time.RFC3339),
			)
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func validateNewAppointment(appt *model.Appointment) error {
	if appt == nil {
		return fmt.Errorf("%w: appointment is required", ErrInvalidInput)
	}
	if strings.TrimSpace(appt.BusinessID) == "" {
		return fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(appt.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if appt.StartTime.IsZero() || appt.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end times are required", ErrInvalidInput)
	}
	if !appt.EndTime.After(appt.StartTime) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	return nil
}
