package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
)

type fakeHours struct {
	rows map[time.Weekday]model.BusinessHours
}

func (f *fakeHours) GetBusinessHours(_ context.Context, businessID string, weekday time.Weekday) (model.BusinessHours, bool, error) {
	h, ok := f.rows[weekday]
	if !ok {
		return model.BusinessHours{}, false, nil
	}
	h.BusinessID = businessID
	h.Weekday = weekday
	return h, true, nil
}

type fakeServices struct {
	services map[string]model.Service
}

func (f *fakeServices) GetService(_ context.Context, _, serviceID string) (model.Service, error) {
	s, ok := f.services[serviceID]
	if !ok {
		return model.Service{}, errors.New("service not found")
	}
	return s, nil
}

type busyChecker struct {
	busy [][2]time.Time
}

func (c *busyChecker) IsTimeSlotAvailable(_ context.Context, _ string, start, end time.Time, _ string) (bool, error) {
	for _, b := range c.busy {
		if start.Before(b[1]) && end.After(b[0]) {
			return false, nil
		}
	}
	return true, nil
}

// Monday of a known week, UTC.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func nineToFive() *fakeHours {
	return &fakeHours{rows: map[time.Weekday]model.BusinessHours{
		time.Monday: {OpenMinute: 9 * 60, CloseMinute: 17 * 60},
	}}
}

func TestFindSlots_WalksBusinessHours(t *testing.T) {
	engine := NewEngine(nineToFive(), &fakeServices{}, &busyChecker{})

	slots, err := engine.FindSlots(context.Background(), Query{
		BusinessID: "biz-1",
		RangeStart: monday,
		RangeEnd:   monday.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}

	// 09:00..16:00 starts at 30-minute steps with a 60-minute default duration.
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Errorf("first slot at %s, want 09:00", slots[0].Start.Format("15:04"))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(monday.Add(16 * time.Hour)) {
		t.Errorf("last slot at %s, want 16:00", last.Start.Format("15:04"))
	}
	close := monday.Add(17 * time.Hour)
	for _, s := range slots {
		if s.End.After(close) {
			t.Errorf("slot ending %s exceeds closing time", s.End.Format("15:04"))
		}
	}
}

func TestFindSlots_ClosedDayEmitsNothing(t *testing.T) {
	hours := &fakeHours{rows: map[time.Weekday]model.BusinessHours{
		time.Monday: {OpenMinute: 9 * 60, CloseMinute: 17 * 60, IsClosed: true},
		// No Tuesday row at all.
	}}
	engine := NewEngine(hours, &fakeServices{}, &busyChecker{})

	slots, err := engine.FindSlots(context.Background(), Query{
		BusinessID: "biz-1",
		RangeStart: monday,
		RangeEnd:   monday.AddDate(0, 0, 2),
	})
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots for closed days, got %d", len(slots))
	}
}

func TestFindSlots_MarksBookedSlotsUnavailable(t *testing.T) {
	checker := &busyChecker{busy: [][2]time.Time{
		{monday.Add(10 * time.Hour), monday.Add(11 * time.Hour)},
	}}
	engine := NewEngine(nineToFive(), &fakeServices{}, checker)

	slots, err := engine.FindSlots(context.Background(), Query{
		BusinessID: "biz-1",
		RangeStart: monday,
		RangeEnd:   monday.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}

	byStart := map[string]bool{}
	for _, s := range slots {
		byStart[s.Start.Format("15:04")] = s.Available
	}
	if byStart["09:00"] != true {
		t.Error("09:00-10:00 should be available (boundary touch is not a conflict)")
	}
	if byStart["09:30"] != false {
		t.Error("09:30-10:30 should be unavailable")
	}
	if byStart["10:00"] != false || byStart["10:30"] != false {
		t.Error("slots overlapping 10:00-11:00 should be unavailable")
	}
	if byStart["11:00"] != true {
		t.Error("11:00-12:00 should be available (boundary touch is not a conflict)")
	}
}

func TestFindSlots_ServiceDurationWins(t *testing.T) {
	services := &fakeServices{services: map[string]model.Service{
		"svc-90": {ID: "svc-90", DurationMinutes: 90, Active: true},
	}}
	engine := NewEngine(nineToFive(), services, &busyChecker{})

	slots, err := engine.FindSlots(context.Background(), Query{
		BusinessID: "biz-1",
		RangeStart: monday,
		RangeEnd:   monday.AddDate(0, 0, 1),
		ServiceID:  "svc-90",
	})
	if err != nil {
		t.Fatalf("FindSlots failed: %v", err)
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != 90*time.Minute {
			t.Fatalf("slot duration %v, want 90m", s.End.Sub(s.Start))
		}
	}
	// Last start that still fits 90 minutes before 17:00 is 15:30.
	last := slots[len(slots)-1]
	if !last.Start.Equal(monday.Add(15*time.Hour + 30*time.Minute)) {
		t.Errorf("last slot at %s, want 15:30", last.Start.Format("15:04"))
	}
}

func TestFindSlots_RejectsNonPositiveDuration(t *testing.T) {
	services := &fakeServices{services: map[string]model.Service{
		"svc-0": {ID: "svc-0", DurationMinutes: 0},
	}}
	engine := NewEngine(nineToFive(), services, &busyChecker{})

	for _, q := range []Query{
		{BusinessID: "biz-1", RangeStart: monday, RangeEnd: monday.AddDate(0, 0, 1), DurationMinutes: -15},
		{BusinessID: "biz-1", RangeStart: monday, RangeEnd: monday.AddDate(0, 0, 1), ServiceID: "svc-0"},
	} {
		if _, err := engine.FindSlots(context.Background(), q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery for duration %d (service %q), got %v", q.DurationMinutes, q.ServiceID, err)
		}
	}
}

func TestFindSlots_RejectsInvertedRange(t *testing.T) {
	engine := NewEngine(nineToFive(), &fakeServices{}, &busyChecker{})
	_, err := engine.FindSlots(context.Background(), Query{
		BusinessID: "biz-1",
		RangeStart: monday.AddDate(0, 0, 1),
		RangeEnd:   monday,
	})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}
