package storage

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/booking"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/outbox"
)

const apptColumns = `id::text, business_id::text, customer_id::text,
	COALESCE(staff_id::text, ''), COALESCE(service_id::text, ''),
	start_time, end_time, status, COALESCE(notes, ''),
	COALESCE(google_event_id, ''), COALESCE(microsoft_event_id, ''), COALESCE(apple_event_id, ''),
	last_synced_at, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

// querier is satisfied by both the pool and a pgx.Tx, so reads can run on
// whichever connection the caller already holds.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ListActiveBetween returns scheduled/confirmed appointments overlapping [from, to)
// for the business, narrowed to one staff member when staffID is set.
func (r *AppointmentRepository) ListActiveBetween(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listActiveBetween(ctx, r.pool, businessID, staffID, from, to)
}

func listActiveBetween(ctx context.Context, q querier, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE business_id = $1
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $3
			AND end_time > $2
	`
	args := []any{businessID, from, to}
	if staffID != "" {
		query += ` AND staff_id = $4`
		args = append(args, staffID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// txLister routes the availability re-check over the transaction that holds the
// advisory lock. Using the pool here instead would block in Acquire whenever every
// connection is parked waiting on the same lock.
type txLister struct {
	tx pgx.Tx
}

func (l txLister) ListActiveBetween(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listActiveBetween(ctx, l.tx, businessID, staffID, from, to)
}

// CreateExclusive inserts the appointment under a per-(business, staff) advisory
// transaction lock, re-running the caller's availability check after the lock is held.
// The re-check reads on this transaction's connection, so it never needs a second
// pool slot. The appointments exclusion constraint catches anything that slips past
// the lock; both paths surface as booking.ErrSlotTaken with nothing persisted. The
// booked event is written to the outbox in the same transaction.
func (r *AppointmentRepository) CreateExclusive(ctx context.Context, appt *model.Appointment, free func(context.Context, booking.Lister) (bool, error)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, slotLockKey(appt.BusinessID, appt.StaffID)); err != nil {
		return err
	}

	// Competing writers hold the lock until commit, so this read observes the winner.
	ok, err := free(ctx, txLister{tx})
	if err != nil {
		return err
	}
	if !ok {
		return booking.ErrSlotTaken
	}

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, customer_id, staff_id, service_id, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
		RETURNING created_at
	`, appt.ID, appt.BusinessID, appt.CustomerID, appt.StaffID, appt.ServiceID,
		appt.StartTime, appt.EndTime, appt.Status, appt.Notes).Scan(&appt.CreatedAt)
	if err != nil {
		if isExclusionConflict(err) {
			return booking.ErrSlotTaken
		}
		return err
	}

	payload, err := bookedEventPayload(appt)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE business_id = $1 AND id = $2
	`, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	defer rows.Close()

	appts, err := scanAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appts[0], nil
}

func (r *AppointmentRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// Cancel marks the appointment cancelled and emits the cancellation event in the same
// transaction. The row keeps its provider event ids so the calendar service can remove
// the remote artifacts afterwards.
func (r *AppointmentRepository) Cancel(ctx context.Context, businessID, appointmentID, reason string) (time.Time, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND business_id = $2 AND status IN ('scheduled', 'confirmed')
		RETURNING cancelled_at
	`, appointmentID, businessID, reason).Scan(&cancelledAt)
	if err != nil {
		return time.Time{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"business_id":    businessID,
		"reason":         reason,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return time.Time{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		return time.Time{}, err
	}

	return cancelledAt, tx.Commit(ctx)
}

func bookedEventPayload(appt *model.Appointment) ([]byte, error) {
	return json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"customer_id":    appt.CustomerID,
		"staff_id":       appt.StaffID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
	})
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var lastSyncedAt, cancelledAt *time.Time
		if err := rows.Scan(
			&a.ID,
			&a.BusinessID,
			&a.CustomerID,
			&a.StaffID,
			&a.ServiceID,
			&a.StartTime,
			&a.EndTime,
			&a.Status,
			&a.Notes,
			&a.GoogleEventID,
			&a.MicrosoftEventID,
			&a.AppleEventID,
			&lastSyncedAt,
			&cancelledAt,
			&a.CancelReason,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.LastSyncedAt = lastSyncedAt
		a.CancelledAt = cancelledAt
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// slotLockKey derives the advisory lock key for a (business, staff) booking scope.
func slotLockKey(businessID, staffID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(businessID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(staffID))
	return int64(h.Sum64())
}

func isExclusionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
