// Package provider contains the per-vendor calendar adapters the sync
// orchestrator fans out to.
package provider

import (
	"context"
	"errors"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

type Kind string

const (
	KindGoogle    Kind = "google"
	KindMicrosoft Kind = "microsoft"
	KindApple     Kind = "apple"
)

// Kinds lists all supported providers in reporting order.
var Kinds = []Kind{KindGoogle, KindMicrosoft, KindApple}

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindGoogle, KindMicrosoft, KindApple:
		return Kind(s), true
	}
	return "", false
}

// ErrNotConnected is returned when a business has no integration configured
// for the provider.
var ErrNotConnected = errors.New("provider: not connected")

// Adapter pushes one appointment at a time into a single external calendar.
// SyncAppointment must be idempotent: when the appointment already carries an
// event id for this provider the adapter updates that event instead of
// creating a duplicate.
type Adapter interface {
	Kind() Kind
	Connected(ctx context.Context, businessID string) (bool, error)

	// SyncAppointment creates or updates the provider-side event and returns
	// the provider's event id.
	SyncAppointment(ctx context.Context, businessID string, appt model.Appointment) (string, error)

	// DeleteAppointment removes the provider-side event. A missing event is
	// not an error.
	DeleteAppointment(ctx context.Context, businessID, eventID string) error
}

// TokenSource yields a live OAuth access token for a business+provider pair.
// Refresh is handled by whoever stores the credentials; adapters only read.
type TokenSource interface {
	AccessToken(ctx context.Context, businessID string, kind Kind) (string, error)
}

// ConnectionChecker reports whether a business has an integration row for a
// provider.
type ConnectionChecker interface {
	IsConnected(ctx context.Context, businessID string, kind Kind) (bool, error)
}
