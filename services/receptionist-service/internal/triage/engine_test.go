package triage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
)

type fakeConfigs struct {
	cfg BusinessConfig
}

func (f fakeConfigs) Config(context.Context, string) (BusinessConfig, error) { return f.cfg, nil }

type fakeHours struct {
	open bool
}

func (f fakeHours) IsOpen(context.Context, string, time.Time) (bool, error) { return f.open, nil }

type fakeBooking struct {
	available   bool
	slots       []bookingapi.Slot
	conflict    *bookingapi.Conflict
	created     []bookingapi.CreateRequest
	slotQueries []bookingapi.SlotQuery
}

func (f *fakeBooking) IsTimeSlotAvailable(context.Context, string, time.Time, time.Time, string) (bool, error) {
	return f.available, nil
}

func (f *fakeBooking) FindSlots(_ context.Context, q bookingapi.SlotQuery) ([]bookingapi.Slot, error) {
	f.slotQueries = append(f.slotQueries, q)
	return f.slots, nil
}

func (f *fakeBooking) CreateAppointment(_ context.Context, req bookingapi.CreateRequest) (bookingapi.Appointment, error) {
	if f.conflict != nil {
		return bookingapi.Appointment{}, f.conflict
	}
	f.created = append(f.created, req)
	return bookingapi.Appointment{AppointmentID: "appt-1", Status: "scheduled"}, nil
}

func newTestEngine(cfg BusinessConfig, open bool, booking bookingapi.Client) *Engine {
	e := NewEngine(fakeConfigs{cfg}, fakeHours{open}, booking, slog.New(slog.DiscardHandler))
	e.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return e
}

func call(text string) CallRequest {
	return CallRequest{
		BusinessID: "biz-1",
		CallerID:   "+15551234567",
		Channel:    ChannelVoice,
		Text:       text,
	}
}

func TestProcessCallEmergencyOverridesAppointmentIntent(t *testing.T) {
	e := newTestEngine(BusinessConfig{TransferNumber: "+15559110000"}, true, &fakeBooking{})

	res, err := e.ProcessCall(context.Background(), call("I have an emergency, I need an appointment"))
	if err != nil {
		t.Fatalf("ProcessCall: %v", err)
	}
	if res.Action != ActionTransferEmergency {
		t.Errorf("action = %s, want %s", res.Action, ActionTransferEmergency)
	}
	if res.Intent != IntentEmergency || !res.IsEmergency {
		t.Errorf("intent = %s emergency = %v, want emergency classification", res.Intent, res.IsEmergency)
	}
	if res.Confidence < 0.93 {
		t.Errorf("confidence = %v, want >= 0.93", res.Confidence)
	}
}

func TestProcessCallEmergencyConfidenceScalesWithMatches(t *testing.T) {
	e := newTestEngine(BusinessConfig{}, true, &fakeBooking{})

	one, _ := e.ProcessCall(context.Background(), call("there is a gas leak"))
	two, _ := e.ProcessCall(context.Background(), call("emergency, there is a gas leak and the basement is flooding"))
	if one.Confidence != 0.93 {
		t.Errorf("single match confidence = %v, want 0.93", one.Confidence)
	}
	if two.Confidence <= one.Confidence {
		t.Errorf("confidence did not scale: %v vs %v", two.Confidence, one.Confidence)
	}
	if two.Confidence > 0.99 {
		t.Errorf("confidence = %v exceeds cap", two.Confidence)
	}
}

func TestProcessCallCustomEmergencyKeywords(t *testing.T) {
	cfg := BusinessConfig{EmergencyKeywords: []string{"sewage backup"}}
	e := newTestEngine(cfg, true, &fakeBooking{})

	res, _ := e.ProcessCall(context.Background(), call("there's a sewage backup in my yard"))
	if !res.IsEmergency {
		t.Errorf("configured keyword not matched")
	}
	// The default list no longer applies once a custom list is set.
	res, _ = e.ProcessCall(context.Background(), call("this is an emergency"))
	if res.IsEmergency {
		t.Errorf("default keyword matched despite custom list")
	}
}

func TestProcessCallIntentRouting(t *testing.T) {
	cases := []struct {
		text   string
		intent Intent
		action Action
	}{
		{"I'd like to book an appointment", IntentAppointment, ActionScheduleAppointment},
		{"how much does a water heater cost", IntentInquiry, ActionProvideInfo},
		{"any update on my repair, is it finished", IntentStatus, ActionCheckStatus},
		{"I want to complain about the service I got", IntentComplaint, ActionTransferToManager},
		{"I need to pay my invoice", IntentPayment, ActionPaymentOptions},
		{"what's your address", IntentLocation, ActionProvideLocation},
		{"are you open today", IntentHours, ActionProvideHours},
		{"do you offer drain cleaning", IntentServices, ActionListServices},
		{"hello there", IntentUnknown, ActionContinueConversation},
	}
	e := newTestEngine(BusinessConfig{}, true, &fakeBooking{})
	for _, tc := range cases {
		res, err := e.ProcessCall(context.Background(), call(tc.text))
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if res.Intent != tc.intent || res.Action != tc.action {
			t.Errorf("%q: got (%s, %s), want (%s, %s)", tc.text, res.Intent, res.Action, tc.intent, tc.action)
		}
		if res.IsEmergency {
			t.Errorf("%q misclassified as emergency", tc.text)
		}
	}
}

func TestProcessCallFirstCategoryWins(t *testing.T) {
	e := newTestEngine(BusinessConfig{}, true, &fakeBooking{})
	// "book" (appointment) and "invoice" (payment) both present; appointment
	// is evaluated first.
	res, _ := e.ProcessCall(context.Background(), call("I want to book time to discuss my invoice"))
	if res.Intent != IntentAppointment {
		t.Errorf("intent = %s, want appointment", res.Intent)
	}
}

func TestProcessCallConfidenceGrowsWithinCategory(t *testing.T) {
	e := newTestEngine(BusinessConfig{}, true, &fakeBooking{})
	one, _ := e.ProcessCall(context.Background(), call("I need to book"))
	two, _ := e.ProcessCall(context.Background(), call("I need to book an appointment, reschedule actually"))
	if one.Confidence != 0.7 {
		t.Errorf("single keyword confidence = %v, want 0.7", one.Confidence)
	}
	if two.Confidence <= one.Confidence || two.Confidence > 0.95 {
		t.Errorf("confidence = %v, want in (0.7, 0.95]", two.Confidence)
	}
}

func TestProcessCallAfterHoursRouting(t *testing.T) {
	appointment := call("I'd like to schedule an appointment")
	other := call("how much is a tune-up")

	e := newTestEngine(BusinessConfig{VoicemailEnabled: true}, false, &fakeBooking{})
	res, _ := e.ProcessCall(context.Background(), appointment)
	if res.Action != ActionScheduleAppointment {
		t.Errorf("after-hours appointment action = %s, want schedule_appointment", res.Action)
	}
	if res.IsBusinessHours {
		t.Errorf("IsBusinessHours = true outside hours")
	}
	res, _ = e.ProcessCall(context.Background(), other)
	if res.Action != ActionTakeVoicemail {
		t.Errorf("after-hours action = %s, want take_voicemail", res.Action)
	}

	e = newTestEngine(BusinessConfig{VoicemailEnabled: false}, false, &fakeBooking{})
	res, _ = e.ProcessCall(context.Background(), other)
	if res.Action != ActionProvideInfo {
		t.Errorf("after-hours without voicemail action = %s, want provide_info", res.Action)
	}
}

func TestProcessAppointmentRequestBooksFreeSlot(t *testing.T) {
	booking := &fakeBooking{available: true}
	e := newTestEngine(BusinessConfig{}, true, booking)

	out, err := e.ProcessAppointmentRequest(context.Background(), "biz-1", "cust-1", AppointmentRequest{
		Start: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ProcessAppointmentRequest: %v", err)
	}
	if !out.Booked || out.AppointmentID != "appt-1" {
		t.Fatalf("outcome = %+v, want booked appt-1", out)
	}
	if len(booking.created) != 1 {
		t.Fatalf("created %d appointments, want 1", len(booking.created))
	}
	// Default duration applies when no end was given.
	if booking.created[0].EndTime != "2026-03-02T12:00:00Z" {
		t.Errorf("end time = %s, want one hour after start", booking.created[0].EndTime)
	}
}

func TestProcessAppointmentRequestConflictReturnsAlternatives(t *testing.T) {
	alt := bookingapi.Slot{
		Start:     time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		Available: true,
	}
	booking := &fakeBooking{available: false, slots: []bookingapi.Slot{alt, {Available: false}}}
	e := newTestEngine(BusinessConfig{}, true, booking)

	out, err := e.ProcessAppointmentRequest(context.Background(), "biz-1", "cust-1", AppointmentRequest{
		Start: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ProcessAppointmentRequest: %v", err)
	}
	if out.Booked {
		t.Fatalf("conflict outcome booked: %+v", out)
	}
	if len(out.Alternatives) != 1 || !out.Alternatives[0].Start.Equal(alt.Start) {
		t.Errorf("alternatives = %+v, want the one open same-day slot", out.Alternatives)
	}
	if len(booking.created) != 0 {
		t.Errorf("appointment created despite conflict")
	}
	// Alternatives come from the same calendar day, not a wider window.
	q := booking.slotQueries[0]
	if !q.RangeStart.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) || !q.RangeEnd.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("alternative query range = %v..%v, want same day", q.RangeStart, q.RangeEnd)
	}
}

func TestProcessAppointmentRequestLateConflictFromBookingService(t *testing.T) {
	booking := &fakeBooking{
		available: true,
		conflict:  &bookingapi.Conflict{Alternatives: []bookingapi.Slot{{Available: true}}},
	}
	e := newTestEngine(BusinessConfig{}, true, booking)

	out, err := e.ProcessAppointmentRequest(context.Background(), "biz-1", "cust-1", AppointmentRequest{
		Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ProcessAppointmentRequest: %v", err)
	}
	if out.Booked {
		t.Fatalf("late conflict still reported as booked")
	}
	if len(out.Alternatives) != 1 {
		t.Errorf("booking service alternatives not surfaced: %+v", out)
	}
}

func TestProcessAppointmentRequestNoTimeOffersWeekOfSlots(t *testing.T) {
	booking := &fakeBooking{slots: []bookingapi.Slot{{Available: true}, {Available: false}}}
	e := newTestEngine(BusinessConfig{}, true, booking)

	out, err := e.ProcessAppointmentRequest(context.Background(), "biz-1", "cust-1", AppointmentRequest{})
	if err != nil {
		t.Fatalf("ProcessAppointmentRequest: %v", err)
	}
	if out.Booked {
		t.Fatalf("no-time request booked an appointment")
	}
	if len(out.Options) != 1 {
		t.Errorf("options = %+v, want only open slots", out.Options)
	}
	q := booking.slotQueries[0]
	if q.RangeEnd.Sub(q.RangeStart) != 7*24*time.Hour {
		t.Errorf("slot window = %v, want 7 days", q.RangeEnd.Sub(q.RangeStart))
	}
	if len(booking.created) != 0 {
		t.Errorf("no-time request created an appointment")
	}
}
