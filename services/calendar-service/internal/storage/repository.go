package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
)

var ErrNotFound = errors.New("storage: not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Integration is one business's connection to an external calendar provider.
// Apple rows carry no tokens; the subscription feed is unauthenticated.
type Integration struct {
	BusinessID   string
	Provider     provider.Kind
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const apptColumns = `
	a.id, a.business_id, a.customer_id,
	coalesce(a.staff_id::text, ''), coalesce(a.service_id::text, ''),
	coalesce(s.name, ''),
	a.start_time, a.end_time, a.status, coalesce(a.notes, ''),
	coalesce(a.google_event_id, ''), coalesce(a.microsoft_event_id, ''), coalesce(a.apple_event_id, ''),
	a.last_synced_at`

// GetAppointment loads an appointment with its service name and provider
// event ids.
func (r *Repository) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	const q = `
		SELECT` + apptColumns + `
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.id = $1`

	var a model.Appointment
	err := r.pool.QueryRow(ctx, q, appointmentID).Scan(
		&a.ID, &a.BusinessID, &a.CustomerID,
		&a.StaffID, &a.ServiceID,
		&a.ServiceName,
		&a.StartTime, &a.EndTime, &a.Status, &a.Notes,
		&a.GoogleEventID, &a.MicrosoftEventID, &a.AppleEventID,
		&a.LastSyncedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// SetProviderEventID records the provider-side event id after a successful
// sync so the next sync updates instead of duplicating.
func (r *Repository) SetProviderEventID(ctx context.Context, appointmentID string, kind provider.Kind, eventID string) error {
	col, err := eventIDColumn(kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE appointments SET %s = $2 WHERE id = $1`, col)
	if _, err := r.pool.Exec(ctx, q, appointmentID, eventID); err != nil {
		return fmt.Errorf("set %s event id: %w", kind, err)
	}
	return nil
}

func (r *Repository) ClearProviderEventID(ctx context.Context, appointmentID string, kind provider.Kind) error {
	col, err := eventIDColumn(kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE appointments SET %s = NULL WHERE id = $1`, col)
	if _, err := r.pool.Exec(ctx, q, appointmentID); err != nil {
		return fmt.Errorf("clear %s event id: %w", kind, err)
	}
	return nil
}

func (r *Repository) StampLastSynced(ctx context.Context, appointmentID string, at time.Time) error {
	const q = `UPDATE appointments SET last_synced_at = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, appointmentID, at); err != nil {
		return fmt.Errorf("stamp last synced: %w", err)
	}
	return nil
}

func eventIDColumn(kind provider.Kind) (string, error) {
	switch kind {
	case provider.KindGoogle:
		return "google_event_id", nil
	case provider.KindMicrosoft:
		return "microsoft_event_id", nil
	case provider.KindApple:
		return "apple_event_id", nil
	}
	return "", fmt.Errorf("unknown provider %q", kind)
}

// UpsertIntegration stores or replaces a business's credentials for a
// provider. One row per business+provider pair.
func (r *Repository) UpsertIntegration(ctx context.Context, in Integration) error {
	const q = `
		INSERT INTO calendar_integrations (business_id, provider, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, q, in.BusinessID, string(in.Provider), in.AccessToken, in.RefreshToken, in.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return nil
}

func (r *Repository) DeleteIntegration(ctx context.Context, businessID string, kind provider.Kind) error {
	const q = `DELETE FROM calendar_integrations WHERE business_id = $1 AND provider = $2`
	tag, err := r.pool.Exec(ctx, q, businessID, string(kind))
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetIntegration(ctx context.Context, businessID string, kind provider.Kind) (Integration, error) {
	const q = `
		SELECT business_id, provider, coalesce(access_token, ''), coalesce(refresh_token, ''), expires_at, created_at, updated_at
		FROM calendar_integrations
		WHERE business_id = $1 AND provider = $2`

	var in Integration
	err := r.pool.QueryRow(ctx, q, businessID, string(kind)).Scan(
		&in.BusinessID, &in.Provider, &in.AccessToken, &in.RefreshToken,
		&in.ExpiresAt, &in.CreatedAt, &in.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Integration{}, ErrNotFound
	}
	if err != nil {
		return Integration{}, fmt.Errorf("get integration: %w", err)
	}
	return in, nil
}

// ListConnectedProviders returns the providers a business has integrations
// for.
func (r *Repository) ListConnectedProviders(ctx context.Context, businessID string) ([]provider.Kind, error) {
	const q = `SELECT provider FROM calendar_integrations WHERE business_id = $1 ORDER BY provider`

	rows, err := r.pool.Query(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list connected providers: %w", err)
	}
	defer rows.Close()

	var kinds []provider.Kind
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		kinds = append(kinds, provider.Kind(k))
	}
	return kinds, rows.Err()
}

// IsConnected implements provider.ConnectionChecker.
func (r *Repository) IsConnected(ctx context.Context, businessID string, kind provider.Kind) (bool, error) {
	_, err := r.GetIntegration(ctx, businessID, kind)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AccessToken implements provider.TokenSource.
func (r *Repository) AccessToken(ctx context.Context, businessID string, kind provider.Kind) (string, error) {
	in, err := r.GetIntegration(ctx, businessID, kind)
	if IsNotFound(err) {
		return "", provider.ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	if in.AccessToken == "" {
		return "", provider.ErrNotConnected
	}
	return in.AccessToken, nil
}
