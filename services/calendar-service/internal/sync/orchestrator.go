// Package sync fans appointment mutations out to every connected calendar
// provider. Providers fail independently; one vendor being down never blocks
// the others or the booking that triggered the sync.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
)

const DefaultProviderTimeout = 10 * time.Second

// Store is the persistence the orchestrator needs: the appointment read
// model plus event-id write-back.
type Store interface {
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)
	SetProviderEventID(ctx context.Context, appointmentID string, kind provider.Kind, eventID string) error
	ClearProviderEventID(ctx context.Context, appointmentID string, kind provider.Kind) error
	StampLastSynced(ctx context.Context, appointmentID string, at time.Time) error
}

// ProviderResult records the outcome of one provider during a fan-out.
// Attempted is false when the business has no integration for the provider
// (or nothing to delete).
type ProviderResult struct {
	Attempted bool
	EventID   string
	Err       error
}

type Orchestrator struct {
	store    Store
	adapters []provider.Adapter
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(store Store, adapters []provider.Adapter, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncAppointment pushes the appointment to every connected provider
// concurrently. A cancelled appointment is routed to deletion so no provider
// keeps showing a dead booking.
func (o *Orchestrator) SyncAppointment(ctx context.Context, appointmentID string) (map[provider.Kind]ProviderResult, error) {
	appt, err := o.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Active() {
		return o.deleteAll(ctx, appt)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[provider.Kind]ProviderResult, len(o.adapters))
	)
	for _, a := range o.adapters {
		wg.Add(1)
		go func(a provider.Adapter) {
			defer wg.Done()
			res := o.syncOne(ctx, a, appt)
			mu.Lock()
			results[a.Kind()] = res
			mu.Unlock()
		}(a)
	}
	wg.Wait()

	if anySucceeded(results) {
		if err := o.store.StampLastSynced(ctx, appt.ID, o.now()); err != nil {
			o.logger.Error("stamp last synced", "appointment_id", appt.ID, "error", err)
		}
	}
	return results, nil
}

// DeleteAppointment removes the appointment's event from every provider that
// holds one.
func (o *Orchestrator) DeleteAppointment(ctx context.Context, appointmentID string) (map[provider.Kind]ProviderResult, error) {
	appt, err := o.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return o.deleteAll(ctx, appt)
}

func (o *Orchestrator) syncOne(ctx context.Context, a provider.Adapter, appt model.Appointment) ProviderResult {
	kind := a.Kind()

	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	connected, err := a.Connected(pctx, appt.BusinessID)
	if err != nil {
		o.logger.Error("provider connection check", "provider", kind, "business_id", appt.BusinessID, "error", err)
		return ProviderResult{Attempted: true, Err: err}
	}
	if !connected {
		return ProviderResult{}
	}

	eventID, err := a.SyncAppointment(pctx, appt.BusinessID, appt)
	if err != nil {
		if errors.Is(err, provider.ErrNotConnected) {
			return ProviderResult{}
		}
		o.logger.Error("provider sync failed",
			"provider", kind, "appointment_id", appt.ID, "business_id", appt.BusinessID, "error", err)
		return ProviderResult{Attempted: true, Err: err}
	}

	if eventID != "" && eventID != existingEventID(appt, kind) {
		if err := o.store.SetProviderEventID(ctx, appt.ID, kind, eventID); err != nil {
			o.logger.Error("record event id", "provider", kind, "appointment_id", appt.ID, "error", err)
		}
	}
	o.logger.Info("provider sync ok", "provider", kind, "appointment_id", appt.ID, "event_id", eventID)
	return ProviderResult{Attempted: true, EventID: eventID}
}

func (o *Orchestrator) deleteAll(ctx context.Context, appt model.Appointment) (map[provider.Kind]ProviderResult, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[provider.Kind]ProviderResult, len(o.adapters))
	)
	for _, a := range o.adapters {
		kind := a.Kind()
		eventID := existingEventID(appt, kind)
		if eventID == "" {
			mu.Lock()
			results[kind] = ProviderResult{}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(a provider.Adapter, eventID string) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()

			res := ProviderResult{Attempted: true, EventID: eventID}
			if err := a.DeleteAppointment(pctx, appt.BusinessID, eventID); err != nil {
				o.logger.Error("provider delete failed",
					"provider", a.Kind(), "appointment_id", appt.ID, "error", err)
				res.Err = err
			} else if err := o.store.ClearProviderEventID(ctx, appt.ID, a.Kind()); err != nil {
				o.logger.Error("clear event id", "provider", a.Kind(), "appointment_id", appt.ID, "error", err)
			}
			mu.Lock()
			results[a.Kind()] = res
			mu.Unlock()
		}(a, eventID)
	}
	wg.Wait()
	return results, nil
}

func existingEventID(appt model.Appointment, kind provider.Kind) string {
	switch kind {
	case provider.KindGoogle:
		return appt.GoogleEventID
	case provider.KindMicrosoft:
		return appt.MicrosoftEventID
	case provider.KindApple:
		return appt.AppleEventID
	}
	return ""
}

func anySucceeded(results map[provider.Kind]ProviderResult) bool {
	for _, r := range results {
		if r.Attempted && r.Err == nil {
			return true
		}
	}
	return false
}
