package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/triage"
)

var ErrNotFound = errors.New("storage: not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Config implements triage.ConfigSource. A business with no stored row gets
// the zero config; the engine then falls back to its default keyword list.
func (r *Repository) Config(ctx context.Context, businessID string) (triage.BusinessConfig, error) {
	const q = `
		SELECT emergency_keywords, coalesce(transfer_number, ''), voicemail_enabled, coalesce(greeting, '')
		FROM receptionist_configs
		WHERE business_id = $1`

	var cfg triage.BusinessConfig
	err := r.pool.QueryRow(ctx, q, businessID).Scan(
		&cfg.EmergencyKeywords, &cfg.TransferNumber, &cfg.VoicemailEnabled, &cfg.Greeting,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return triage.BusinessConfig{}, nil
	}
	if err != nil {
		return triage.BusinessConfig{}, fmt.Errorf("get receptionist config: %w", err)
	}
	return cfg, nil
}

// UpdateConfig stores the per-business triage configuration, one row per
// business.
func (r *Repository) UpdateConfig(ctx context.Context, businessID string, cfg triage.BusinessConfig) error {
	const q = `
		INSERT INTO receptionist_configs (business_id, emergency_keywords, transfer_number, voicemail_enabled, greeting)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id) DO UPDATE SET
			emergency_keywords = excluded.emergency_keywords,
			transfer_number = excluded.transfer_number,
			voicemail_enabled = excluded.voicemail_enabled,
			greeting = excluded.greeting,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, q, businessID, cfg.EmergencyKeywords, cfg.TransferNumber, cfg.VoicemailEnabled, cfg.Greeting)
	if err != nil {
		return fmt.Errorf("update receptionist config: %w", err)
	}
	return nil
}

// IsOpen implements triage.HoursSource. A missing weekday row means closed.
func (r *Repository) IsOpen(ctx context.Context, businessID string, at time.Time) (bool, error) {
	const q = `
		SELECT open_minute, close_minute, is_closed
		FROM business_hours
		WHERE business_id = $1 AND weekday = $2`

	var (
		openMinute, closeMinute int
		isClosed                bool
	)
	err := r.pool.QueryRow(ctx, q, businessID, int(at.Weekday())).Scan(&openMinute, &closeMinute, &isClosed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get business hours: %w", err)
	}
	if isClosed {
		return false, nil
	}
	minute := at.Hour()*60 + at.Minute()
	return minute >= openMinute && minute < closeMinute, nil
}

// CallLog is the persisted summary of one triaged call turn.
type CallLog struct {
	ID          string
	BusinessID  string
	CallerID    string
	Channel     string
	Intent      string
	Action      string
	Confidence  float64
	IsEmergency bool
	CreatedAt   time.Time
}

func (r *Repository) InsertCallLog(ctx context.Context, log *CallLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO call_logs (id, business_id, caller_id, channel, intent, action, confidence, is_emergency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, q,
		log.ID, log.BusinessID, log.CallerID, log.Channel,
		log.Intent, log.Action, log.Confidence, log.IsEmergency,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (r *Repository) ListCallLogs(ctx context.Context, businessID string, limit int) ([]CallLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
		SELECT id, business_id, caller_id, channel, intent, action, confidence, is_emergency, created_at
		FROM call_logs
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, q, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	defer rows.Close()

	var logs []CallLog
	for rows.Next() {
		var l CallLog
		if err := rows.Scan(&l.ID, &l.BusinessID, &l.CallerID, &l.Channel,
			&l.Intent, &l.Action, &l.Confidence, &l.IsEmergency, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
