package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
)

const defaultDurationMinutes = 60

// AppointmentRequest is what triage extracted from the conversation. Start
// may be zero when the caller hasn't committed to a time yet.
type AppointmentRequest struct {
	StaffID         string
	ServiceID       string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Notes           string
}

// AppointmentOutcome reports either a confirmed booking, the alternatives
// offered after a conflict, or the open slots when no time was requested.
type AppointmentOutcome struct {
	Booked        bool
	AppointmentID string
	Alternatives  []bookingapi.Slot
	Options       []bookingapi.Slot
	Message       string
}

// ProcessAppointmentRequest drives the booking flow for a caller. A concrete
// requested time is checked and booked; a conflict comes back with same-day
// alternatives instead of a bare failure; no requested time returns the open
// slots over the next seven days without booking anything.
func (e *Engine) ProcessAppointmentRequest(ctx context.Context, businessID, customerID string, req AppointmentRequest) (AppointmentOutcome, error) {
	if businessID == "" || customerID == "" {
		return AppointmentOutcome{}, errors.New("business and customer are required")
	}

	if req.Start.IsZero() {
		return e.offerSlots(ctx, businessID, req)
	}

	end := req.End
	if end.IsZero() {
		minutes := req.DurationMinutes
		if minutes <= 0 {
			minutes = defaultDurationMinutes
		}
		end = req.Start.Add(time.Duration(minutes) * time.Minute)
	}

	available, err := e.booking.IsTimeSlotAvailable(ctx, businessID, req.Start, end, req.StaffID)
	if err != nil {
		return AppointmentOutcome{}, fmt.Errorf("availability check: %w", err)
	}
	if !available {
		alternatives, err := e.sameDaySlots(ctx, businessID, req)
		if err != nil {
			e.logger.Warn("alternative slot lookup failed", "business_id", businessID, "err", err)
		}
		return AppointmentOutcome{
			Alternatives: openOnly(alternatives),
			Message:      "That time is already booked. Here are some other openings that day.",
		}, nil
	}

	appt, err := e.booking.CreateAppointment(ctx, bookingapi.CreateRequest{
		BusinessID: businessID,
		CustomerID: customerID,
		StaffID:    req.StaffID,
		ServiceID:  req.ServiceID,
		StartTime:  req.Start.Format(time.RFC3339),
		EndTime:    end.Format(time.RFC3339),
		Notes:      req.Notes,
	})
	if err != nil {
		// Another caller can grab the slot between our check and the booking
		// service's own serialized re-check. Surface its alternatives.
		var conflict *bookingapi.Conflict
		if errors.As(err, &conflict) {
			return AppointmentOutcome{
				Alternatives: openOnly(conflict.Alternatives),
				Message:      "That time was just taken. Here are some other openings that day.",
			}, nil
		}
		return AppointmentOutcome{}, fmt.Errorf("create appointment: %w", err)
	}

	return AppointmentOutcome{
		Booked:        true,
		AppointmentID: appt.AppointmentID,
		Message:       "You're booked for " + req.Start.Format("Monday, January 2 at 3:04 PM") + ".",
	}, nil
}

func (e *Engine) offerSlots(ctx context.Context, businessID string, req AppointmentRequest) (AppointmentOutcome, error) {
	now := e.now()
	slots, err := e.booking.FindSlots(ctx, bookingapi.SlotQuery{
		BusinessID:      businessID,
		RangeStart:      now,
		RangeEnd:        now.AddDate(0, 0, 7),
		ServiceID:       req.ServiceID,
		StaffID:         req.StaffID,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return AppointmentOutcome{}, fmt.Errorf("find slots: %w", err)
	}
	return AppointmentOutcome{
		Options: openOnly(slots),
		Message: "Here are our openings over the next week.",
	}, nil
}

func (e *Engine) sameDaySlots(ctx context.Context, businessID string, req AppointmentRequest) ([]bookingapi.Slot, error) {
	dayStart := time.Date(req.Start.Year(), req.Start.Month(), req.Start.Day(), 0, 0, 0, 0, req.Start.Location())
	return e.booking.FindSlots(ctx, bookingapi.SlotQuery{
		BusinessID:      businessID,
		RangeStart:      dayStart,
		RangeEnd:        dayStart.AddDate(0, 0, 1),
		ServiceID:       req.ServiceID,
		StaffID:         req.StaffID,
		DurationMinutes: req.DurationMinutes,
	})
}

func openOnly(slots []bookingapi.Slot) []bookingapi.Slot {
	open := make([]bookingapi.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			open = append(open, s)
		}
	}
	return open
}
