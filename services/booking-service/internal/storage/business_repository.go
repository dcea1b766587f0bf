package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
)

// BusinessRepository reads the scheduling configuration owned by the dashboard's
// profile screens: weekly hours and the service catalog.
type BusinessRepository struct {
	pool *db.Pool
}

func NewBusinessRepository(pool *db.Pool) *BusinessRepository {
	return &BusinessRepository{pool: pool}
}

// GetBusinessHours returns ok=false when the weekday has no row; callers treat that
// as closed.
func (r *BusinessRepository) GetBusinessHours(ctx context.Context, businessID string, weekday time.Weekday) (model.BusinessHours, bool, error) {
	var h model.BusinessHours
	var wd int
	err := r.pool.QueryRow(ctx, `
		SELECT business_id::text, weekday, open_minute, close_minute, is_closed
		FROM business_hours
		WHERE business_id = $1 AND weekday = $2
	`, businessID, int(weekday)).Scan(&h.BusinessID, &wd, &h.OpenMinute, &h.CloseMinute, &h.IsClosed)
	if err == pgx.ErrNoRows {
		return model.BusinessHours{}, false, nil
	}
	if err != nil {
		return model.BusinessHours{}, false, err
	}
	h.Weekday = time.Weekday(wd)
	return h, true, nil
}

func (r *BusinessRepository) ListBusinessHours(ctx context.Context, businessID string) ([]model.BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT business_id::text, weekday, open_minute, close_minute, is_closed
		FROM business_hours
		WHERE business_id = $1
		ORDER BY weekday ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusinessHours
	for rows.Next() {
		var h model.BusinessHours
		var wd int
		if err := rows.Scan(&h.BusinessID, &wd, &h.OpenMinute, &h.CloseMinute, &h.IsClosed); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(wd)
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BusinessRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, active
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Active)
	if err != nil {
		return model.Service{}, err
	}
	return s, nil
}
