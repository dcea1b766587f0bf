package provider

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

type connectedAlways struct{}

func (connectedAlways) IsConnected(context.Context, string, Kind) (bool, error) { return true, nil }

func newTestApple(t *testing.T) *AppleAdapter {
	t.Helper()
	a := NewAppleAdapter(connectedAlways{}, t.TempDir())
	a.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return a
}

func testAppointment(id string, hour int) model.Appointment {
	return model.Appointment{
		ID:          id,
		BusinessID:  "biz-1",
		CustomerID:  "cust-1",
		ServiceName: "Haircut",
		StartTime:   time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 2, hour+1, 0, 0, 0, time.UTC),
		Status:      model.StatusScheduled,
	}
}

func TestAppleSyncWritesFragmentAndFeed(t *testing.T) {
	a := newTestApple(t)

	uid, err := a.SyncAppointment(context.Background(), "biz-1", testAppointment("a1", 10))
	if err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}
	if uid != "appointment-a1@smallbizagent" {
		t.Fatalf("uid = %q", uid)
	}

	frag, err := os.ReadFile(a.fragmentPath("biz-1", "a1"))
	if err != nil {
		t.Fatalf("read fragment: %v", err)
	}
	if !strings.Contains(string(frag), "UID:appointment-a1@smallbizagent") {
		t.Fatalf("fragment missing UID: %s", frag)
	}

	feed, err := os.ReadFile(a.FeedPath("biz-1"))
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	for _, want := range []string{"BEGIN:VCALENDAR\r\n", "METHOD:PUBLISH\r\n", "DTSTART:20260302T100000Z", "SUMMARY:Haircut"} {
		if !strings.Contains(string(feed), want) {
			t.Errorf("feed missing %q:\n%s", want, feed)
		}
	}
}

func TestAppleFeedRebuiltOnEveryMutation(t *testing.T) {
	a := newTestApple(t)
	ctx := context.Background()

	uid1, err := a.SyncAppointment(ctx, "biz-1", testAppointment("a1", 10))
	if err != nil {
		t.Fatalf("sync a1: %v", err)
	}
	if _, err := a.SyncAppointment(ctx, "biz-1", testAppointment("a2", 12)); err != nil {
		t.Fatalf("sync a2: %v", err)
	}

	feed, _ := os.ReadFile(a.FeedPath("biz-1"))
	if got := strings.Count(string(feed), "BEGIN:VEVENT"); got != 2 {
		t.Fatalf("feed has %d events, want 2:\n%s", got, feed)
	}

	if err := a.DeleteAppointment(ctx, "biz-1", uid1); err != nil {
		t.Fatalf("delete a1: %v", err)
	}
	feed, _ = os.ReadFile(a.FeedPath("biz-1"))
	if strings.Contains(string(feed), "appointment-a1@") {
		t.Fatalf("deleted event still in feed:\n%s", feed)
	}
	if !strings.Contains(string(feed), "appointment-a2@") {
		t.Fatalf("surviving event dropped from feed:\n%s", feed)
	}
}

func TestAppleSyncIsIdempotentPerAppointment(t *testing.T) {
	a := newTestApple(t)
	ctx := context.Background()

	appt := testAppointment("a1", 10)
	if _, err := a.SyncAppointment(ctx, "biz-1", appt); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	appt.StartTime = appt.StartTime.Add(time.Hour)
	appt.EndTime = appt.EndTime.Add(time.Hour)
	if _, err := a.SyncAppointment(ctx, "biz-1", appt); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	feed, _ := os.ReadFile(a.FeedPath("biz-1"))
	if got := strings.Count(string(feed), "BEGIN:VEVENT"); got != 1 {
		t.Fatalf("resync duplicated the event, feed has %d:\n%s", got, feed)
	}
	if !strings.Contains(string(feed), "DTSTART:20260302T110000Z") {
		t.Fatalf("feed not updated with new start:\n%s", feed)
	}
}

func TestAppleDeleteMissingFragmentIsNoError(t *testing.T) {
	a := newTestApple(t)
	if err := a.DeleteAppointment(context.Background(), "biz-1", "appointment-ghost@smallbizagent"); err != nil {
		t.Fatalf("delete of missing fragment: %v", err)
	}
}

func TestAppleFeedsAreScopedPerBusiness(t *testing.T) {
	a := newTestApple(t)
	ctx := context.Background()

	if _, err := a.SyncAppointment(ctx, "biz-1", testAppointment("a1", 10)); err != nil {
		t.Fatalf("sync biz-1: %v", err)
	}
	other := testAppointment("b1", 9)
	other.BusinessID = "biz-2"
	if _, err := a.SyncAppointment(ctx, "biz-2", other); err != nil {
		t.Fatalf("sync biz-2: %v", err)
	}

	feed, _ := os.ReadFile(a.FeedPath("biz-1"))
	if strings.Contains(string(feed), "appointment-b1@") {
		t.Fatalf("biz-2 event leaked into biz-1 feed:\n%s", feed)
	}
}
