package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
)

type fakeStore struct {
	mu       sync.Mutex
	appt     model.Appointment
	eventIDs map[provider.Kind]string
	cleared  []provider.Kind
	stamped  int
}

func newFakeStore(appt model.Appointment) *fakeStore {
	return &fakeStore{appt: appt, eventIDs: map[provider.Kind]string{}}
}

func (s *fakeStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	if id != s.appt.ID {
		return model.Appointment{}, errors.New("not found")
	}
	return s.appt, nil
}

func (s *fakeStore) SetProviderEventID(_ context.Context, _ string, kind provider.Kind, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventIDs[kind] = eventID
	return nil
}

func (s *fakeStore) ClearProviderEventID(_ context.Context, _ string, kind provider.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, kind)
	return nil
}

func (s *fakeStore) StampLastSynced(_ context.Context, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamped++
	return nil
}

type fakeAdapter struct {
	kind      provider.Kind
	connected bool
	syncErr   error
	deleteErr error
	delay     time.Duration

	mu      sync.Mutex
	syncs   int
	deletes []string
}

func (a *fakeAdapter) Kind() provider.Kind { return a.kind }

func (a *fakeAdapter) Connected(context.Context, string) (bool, error) { return a.connected, nil }

func (a *fakeAdapter) SyncAppointment(ctx context.Context, _ string, _ model.Appointment) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	a.mu.Lock()
	a.syncs++
	a.mu.Unlock()
	if a.syncErr != nil {
		return "", a.syncErr
	}
	return string(a.kind) + "-event-1", nil
}

func (a *fakeAdapter) DeleteAppointment(_ context.Context, _ string, eventID string) error {
	a.mu.Lock()
	a.deletes = append(a.deletes, eventID)
	a.mu.Unlock()
	return a.deleteErr
}

func activeAppointment() model.Appointment {
	return model.Appointment{
		ID:         "a1",
		BusinessID: "biz-1",
		StartTime:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		Status:     model.StatusScheduled,
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestSyncFansOutToConnectedProviders(t *testing.T) {
	store := newFakeStore(activeAppointment())
	google := &fakeAdapter{kind: provider.KindGoogle, connected: true}
	microsoft := &fakeAdapter{kind: provider.KindMicrosoft, connected: false}
	apple := &fakeAdapter{kind: provider.KindApple, connected: true}

	o := NewOrchestrator(store, []provider.Adapter{google, microsoft, apple}, 0, discard())
	results, err := o.SyncAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}

	if !results[provider.KindGoogle].Attempted || results[provider.KindGoogle].Err != nil {
		t.Errorf("google result = %+v, want attempted success", results[provider.KindGoogle])
	}
	if results[provider.KindMicrosoft].Attempted {
		t.Errorf("microsoft attempted despite not connected")
	}
	if microsoft.syncs != 0 {
		t.Errorf("microsoft adapter was called %d times", microsoft.syncs)
	}
	if store.eventIDs[provider.KindGoogle] != "google-event-1" {
		t.Errorf("google event id not recorded: %v", store.eventIDs)
	}
	if store.eventIDs[provider.KindApple] != "apple-event-1" {
		t.Errorf("apple event id not recorded: %v", store.eventIDs)
	}
	if store.stamped != 1 {
		t.Errorf("last_synced_at stamped %d times, want 1", store.stamped)
	}
}

func TestSyncProviderFailureIsIsolated(t *testing.T) {
	store := newFakeStore(activeAppointment())
	google := &fakeAdapter{kind: provider.KindGoogle, connected: true, syncErr: errors.New("googleapi: 500")}
	apple := &fakeAdapter{kind: provider.KindApple, connected: true}

	o := NewOrchestrator(store, []provider.Adapter{google, apple}, 0, discard())
	results, err := o.SyncAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}

	if results[provider.KindGoogle].Err == nil {
		t.Errorf("google failure not reported")
	}
	if results[provider.KindApple].Err != nil {
		t.Errorf("apple dragged down by google: %v", results[provider.KindApple].Err)
	}
	if _, ok := store.eventIDs[provider.KindGoogle]; ok {
		t.Errorf("event id recorded for failed sync")
	}
	if store.stamped != 1 {
		t.Errorf("partial success should still stamp last_synced_at, got %d", store.stamped)
	}
}

func TestSyncAllProvidersFailSkipsStamp(t *testing.T) {
	store := newFakeStore(activeAppointment())
	google := &fakeAdapter{kind: provider.KindGoogle, connected: true, syncErr: errors.New("down")}

	o := NewOrchestrator(store, []provider.Adapter{google}, 0, discard())
	if _, err := o.SyncAppointment(context.Background(), "a1"); err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}
	if store.stamped != 0 {
		t.Errorf("last_synced_at stamped with zero successes")
	}
}

func TestSyncSlowProviderTimesOut(t *testing.T) {
	store := newFakeStore(activeAppointment())
	slow := &fakeAdapter{kind: provider.KindGoogle, connected: true, delay: 200 * time.Millisecond}
	fast := &fakeAdapter{kind: provider.KindApple, connected: true}

	o := NewOrchestrator(store, []provider.Adapter{slow, fast}, 20*time.Millisecond, discard())
	results, err := o.SyncAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}

	if !errors.Is(results[provider.KindGoogle].Err, context.DeadlineExceeded) {
		t.Errorf("slow provider error = %v, want deadline exceeded", results[provider.KindGoogle].Err)
	}
	if results[provider.KindApple].Err != nil {
		t.Errorf("fast provider affected by slow one: %v", results[provider.KindApple].Err)
	}
}

func TestDeleteOnlyTouchesProvidersWithEventIDs(t *testing.T) {
	appt := activeAppointment()
	appt.GoogleEventID = "g-1"
	store := newFakeStore(appt)
	google := &fakeAdapter{kind: provider.KindGoogle, connected: true}
	microsoft := &fakeAdapter{kind: provider.KindMicrosoft, connected: true}

	o := NewOrchestrator(store, []provider.Adapter{google, microsoft}, 0, discard())
	results, err := o.DeleteAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("DeleteAppointment: %v", err)
	}

	if len(google.deletes) != 1 || google.deletes[0] != "g-1" {
		t.Errorf("google deletes = %v, want [g-1]", google.deletes)
	}
	if len(microsoft.deletes) != 0 {
		t.Errorf("microsoft deleted without a stored event id: %v", microsoft.deletes)
	}
	if results[provider.KindMicrosoft].Attempted {
		t.Errorf("microsoft marked attempted with no event id")
	}
	if len(store.cleared) != 1 || store.cleared[0] != provider.KindGoogle {
		t.Errorf("cleared = %v, want [google]", store.cleared)
	}
}

func TestSyncCancelledAppointmentDeletesInstead(t *testing.T) {
	appt := activeAppointment()
	appt.Status = model.StatusCancelled
	appt.AppleEventID = "appointment-a1@smallbizagent"
	store := newFakeStore(appt)
	apple := &fakeAdapter{kind: provider.KindApple, connected: true}

	o := NewOrchestrator(store, []provider.Adapter{apple}, 0, discard())
	if _, err := o.SyncAppointment(context.Background(), "a1"); err != nil {
		t.Fatalf("SyncAppointment: %v", err)
	}

	if apple.syncs != 0 {
		t.Errorf("cancelled appointment was synced as live")
	}
	if len(apple.deletes) != 1 {
		t.Errorf("cancelled appointment not deleted from provider: %v", apple.deletes)
	}
}
