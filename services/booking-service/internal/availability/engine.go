package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
)

var ErrInvalidQuery = errors.New("invalid availability query")

const (
	DefaultGranularityMinutes = 30
	DefaultDurationMinutes    = 60
)

// Slot is a candidate interval within business hours, marked with whether the
// coordinator would currently accept a booking for it.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type HoursStore interface {
	// GetBusinessHours returns the row for one weekday; ok=false means no row,
	// which is treated as closed.
	GetBusinessHours(ctx context.Context, businessID string, weekday time.Weekday) (model.BusinessHours, bool, error)
}

type ServiceStore interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
}

// SlotChecker is implemented by the booking coordinator.
type SlotChecker interface {
	IsTimeSlotAvailable(ctx context.Context, businessID string, start, end time.Time, staffID string) (bool, error)
}

type Engine struct {
	hours    HoursStore
	services ServiceStore
	checker  SlotChecker
}

func NewEngine(hours HoursStore, services ServiceStore, checker SlotChecker) *Engine {
	return &Engine{hours: hours, services: services, checker: checker}
}

type Query struct {
	BusinessID string
	RangeStart time.Time
	RangeEnd   time.Time
	ServiceID  string // duration comes from the service row when set
	StaffID    string
	// GranularityMinutes defaults to 30, DurationMinutes to 60; DurationMinutes is
	// ignored when ServiceID is set.
	GranularityMinutes int
	DurationMinutes    int
}

// FindSlots walks every calendar day in [RangeStart, RangeEnd] through that weekday's
// business hours and emits one slot per granularity step. A day with no hours row, or
// one marked closed, contributes nothing. No emitted slot ever ends past closing time,
// so slots cannot cross midnight either.
func (e *Engine) FindSlots(ctx context.Context, q Query) ([]Slot, error) {
	if q.BusinessID == "" {
		return nil, fmt.Errorf("%w: business id is required", ErrInvalidQuery)
	}
	if q.RangeStart.IsZero() || q.RangeEnd.IsZero() || !q.RangeEnd.After(q.RangeStart) {
		return nil, fmt.Errorf("%w: range end must be after range start", ErrInvalidQuery)
	}
	if q.GranularityMinutes < 0 {
		return nil, fmt.Errorf("%w: granularity must be positive", ErrInvalidQuery)
	}
	granularity := q.GranularityMinutes
	if granularity == 0 {
		granularity = DefaultGranularityMinutes
	}

	duration, err := e.resolveDuration(ctx, q)
	if err != nil {
		return nil, err
	}

	var slots []Slot
	step := time.Duration(granularity) * time.Minute
	for day := startOfDay(q.RangeStart); !day.After(q.RangeEnd); day = day.AddDate(0, 0, 1) {
		hours, ok, err := e.hours.GetBusinessHours(ctx, q.BusinessID, day.Weekday())
		if err != nil {
			return nil, err
		}
		if !ok || hours.IsClosed {
			continue
		}

		open := day.Add(time.Duration(hours.OpenMinute) * time.Minute)
		close := day.Add(time.Duration(hours.CloseMinute) * time.Minute)
		for start := open; !start.Add(duration).After(close); start = start.Add(step) {
			end := start.Add(duration)
			if start.Before(q.RangeStart) || end.After(q.RangeEnd) {
				continue
			}
			available, err := e.checker.IsTimeSlotAvailable(ctx, q.BusinessID, start, end, q.StaffID)
			if err != nil {
				return nil, err
			}
			slots = append(slots, Slot{Start: start, End: end, Available: available})
		}
	}
	return slots, nil
}

func (e *Engine) resolveDuration(ctx context.Context, q Query) (time.Duration, error) {
	minutes := q.DurationMinutes
	if q.ServiceID != "" {
		svc, err := e.services.GetService(ctx, q.BusinessID, q.ServiceID)
		if err != nil {
			return 0, err
		}
		minutes = svc.DurationMinutes
	} else if minutes == 0 {
		minutes = DefaultDurationMinutes
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive", ErrInvalidQuery)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
