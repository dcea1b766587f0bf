package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/availability"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/booking"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/model"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/storage"
)

type BookingHandler struct {
	engine      *availability.Engine
	coordinator *booking.Coordinator
	repo        *storage.AppointmentRepository
	business    *storage.BusinessRepository
	logger      *slog.Logger
}

func NewBookingHandler(
	engine *availability.Engine,
	coordinator *booking.Coordinator,
	repo *storage.AppointmentRepository,
	business *storage.BusinessRepository,
	logger *slog.Logger,
) *BookingHandler {
	return &BookingHandler{
		engine:      engine,
		coordinator: coordinator,
		repo:        repo,
		business:    business,
		logger:      logger,
	}
}

type createBookingRequest struct {
	BusinessID string `json:"business_id"`
	CustomerID string `json:"customer_id"`
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Notes      string `json:"notes"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type conflictResponse struct {
	Error        string              `json:"error"`
	Alternatives []availability.Slot `json:"alternatives"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

// Slots serves the open/closed slot sequence for a business and time range.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}

	query := availability.Query{
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		RangeStart: start,
		RangeEnd:   end,
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
	}
	if v := q.Get("granularity_minutes"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil {
			query.GranularityMinutes = mins
		}
	}
	if v := q.Get("duration_minutes"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil {
			query.DurationMinutes = mins
		}
	}

	slots, err := h.engine.FindSlots(r.Context(), query)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidQuery) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("find slots failed", "err", err)
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// Availability answers a single is-this-slot-free question.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}

	available, err := h.coordinator.IsTimeSlotAvailable(r.Context(),
		strings.TrimSpace(q.Get("business_id")), start, end, strings.TrimSpace(q.Get("staff_id")))
	if err != nil {
		if errors.Is(err, booking.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("availability check failed", "err", err)
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Available: available})
}

// Create books a single appointment. On a slot conflict it answers 409 with the
// same-day alternatives instead of a bare failure.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)

	if req.BusinessID == "" || req.CustomerID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := h.resolveEndTime(r, req, startTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt := &model.Appointment{
		BusinessID: req.BusinessID,
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		ServiceID:  req.ServiceID,
		StartTime:  startTime,
		EndTime:    endTime,
		Notes:      strings.TrimSpace(req.Notes),
	}

	created, err := h.coordinator.CreateAppointmentSafely(r.Context(), appt)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, booking.ErrSlotTaken):
			writeJSON(w, http.StatusConflict, conflictResponse{
				Error:        "time slot already booked",
				Alternatives: h.sameDayAlternatives(r, appt),
			})
		default:
			h.logger.Error("create appointment failed", "err", err)
			http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID: created.ID,
		Status:        string(created.Status),
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	appts, err := h.repo.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		item := map[string]any{
			"appointment_id": a.ID,
			"customer_id":    a.CustomerID,
			"staff_id":       a.StaffID,
			"service_id":     a.ServiceID,
			"start_time":     a.StartTime.Format(time.RFC3339),
			"end_time":       a.EndTime.Format(time.RFC3339),
			"status":         a.Status,
		}
		if a.LastSyncedAt != nil {
			item["last_synced_at"] = a.LastSyncedAt.Format(time.RFC3339)
		}
		if a.CancelledAt != nil {
			item["cancelled_at"] = a.CancelledAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type cancelBookingRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	cancelledAt, err := h.repo.Cancel(r.Context(), req.BusinessID, req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("cancel appointment failed", "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"status":         string(model.StatusCancelled),
		"cancelled_at":   cancelledAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) resolveEndTime(r *http.Request, req createBookingRequest, start time.Time) (time.Time, error) {
	if strings.TrimSpace(req.EndTime) != "" {
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			return time.Time{}, errors.New("invalid end_time")
		}
		return end, nil
	}
	minutes := availability.DefaultDurationMinutes
	if req.ServiceID != "" {
		svc, err := h.business.GetService(r.Context(), req.BusinessID, req.ServiceID)
		if err != nil {
			return time.Time{}, errors.New("unknown service_id")
		}
		minutes = svc.DurationMinutes
	}
	if minutes <= 0 {
		return time.Time{}, errors.New("service has no usable duration")
	}
	return start.Add(time.Duration(minutes) * time.Minute), nil
}

// sameDayAlternatives suggests still-open slots on the requested calendar day.
// Best effort: an error here degrades to an empty list, never a failed response.
func (h *BookingHandler) sameDayAlternatives(r *http.Request, appt *model.Appointment) []availability.Slot {
	dayStart := time.Date(appt.StartTime.Year(), appt.StartTime.Month(), appt.StartTime.Day(), 0, 0, 0, 0, appt.StartTime.Location())
	slots, err := h.engine.FindSlots(r.Context(), availability.Query{
		BusinessID:      appt.BusinessID,
		RangeStart:      dayStart,
		RangeEnd:        dayStart.AddDate(0, 0, 1),
		ServiceID:       appt.ServiceID,
		StaffID:         appt.StaffID,
		DurationMinutes: int(appt.EndTime.Sub(appt.StartTime) / time.Minute),
	})
	if err != nil {
		h.logger.Warn("alternative slot lookup failed", "err", err)
		return nil
	}
	open := make([]availability.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			open = append(open, s)
		}
	}
	return open
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
