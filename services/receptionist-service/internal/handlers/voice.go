package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/storage"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/triage"
)

type VoiceHandler struct {
	engine *triage.Engine
	repo   *storage.Repository
	logger *slog.Logger
}

func NewVoiceHandler(engine *triage.Engine, repo *storage.Repository, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{engine: engine, repo: repo, logger: logger}
}

type processCallRequest struct {
	BusinessID string `json:"business_id"`
	CallerID   string `json:"caller_id"`
	Channel    string `json:"channel"`
	Text       string `json:"text"`
}

type processCallResponse struct {
	Action          string  `json:"action"`
	Response        string  `json:"response"`
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	IsEmergency     bool    `json:"is_emergency"`
	IsBusinessHours bool    `json:"is_business_hours"`
}

// ProcessCall triages one turn of caller text. The call log write is best
// effort; losing a summary row never fails the live call.
func (h *VoiceHandler) ProcessCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req processCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Text = strings.TrimSpace(req.Text)
	if req.BusinessID == "" || req.Text == "" {
		http.Error(w, "business_id and text are required", http.StatusBadRequest)
		return
	}

	channel := triage.Channel(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = triage.ChannelVoice
	}

	result, err := h.engine.ProcessCall(r.Context(), triage.CallRequest{
		BusinessID: req.BusinessID,
		CallerID:   strings.TrimSpace(req.CallerID),
		Channel:    channel,
		Text:       req.Text,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("process call failed", "err", err)
		http.Error(w, "failed to process call", http.StatusInternalServerError)
		return
	}

	if err := h.repo.InsertCallLog(r.Context(), &storage.CallLog{
		BusinessID:  req.BusinessID,
		CallerID:    strings.TrimSpace(req.CallerID),
		Channel:     string(channel),
		Intent:      string(result.Intent),
		Action:      string(result.Action),
		Confidence:  result.Confidence,
		IsEmergency: result.IsEmergency,
	}); err != nil {
		h.logger.Warn("call log write failed", "err", err)
	}

	writeJSON(w, http.StatusOK, processCallResponse{
		Action:          string(result.Action),
		Response:        result.Response,
		Intent:          string(result.Intent),
		Confidence:      result.Confidence,
		IsEmergency:     result.IsEmergency,
		IsBusinessHours: result.IsBusinessHours,
	})
}

type appointmentRequest struct {
	BusinessID      string `json:"business_id"`
	CustomerID      string `json:"customer_id"`
	StaffID         string `json:"staff_id"`
	ServiceID       string `json:"service_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type appointmentResponse struct {
	Booked        bool              `json:"booked"`
	AppointmentID string            `json:"appointment_id,omitempty"`
	Alternatives  []bookingapi.Slot `json:"alternatives,omitempty"`
	Options       []bookingapi.Slot `json:"options,omitempty"`
	Message       string            `json:"message"`
}

// AppointmentRequest drives the booking flow on a caller's behalf.
func (h *VoiceHandler) AppointmentRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.BusinessID == "" || req.CustomerID == "" {
		http.Error(w, "business_id and customer_id are required", http.StatusBadRequest)
		return
	}

	treq := triage.AppointmentRequest{
		StaffID:         strings.TrimSpace(req.StaffID),
		ServiceID:       strings.TrimSpace(req.ServiceID),
		DurationMinutes: req.DurationMinutes,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if req.StartTime != "" {
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		treq.Start = start
	}
	if req.EndTime != "" {
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		treq.End = end
	}

	out, err := h.engine.ProcessAppointmentRequest(r.Context(), req.BusinessID, req.CustomerID, treq)
	if err != nil {
		h.logger.Error("appointment request failed", "err", err)
		http.Error(w, "failed to process appointment request", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, appointmentResponse{
		Booked:        out.Booked,
		AppointmentID: out.AppointmentID,
		Alternatives:  out.Alternatives,
		Options:       out.Options,
		Message:       out.Message,
	})
}

type configResponse struct {
	EmergencyKeywords []string `json:"emergency_keywords"`
	TransferNumber    string   `json:"transfer_number"`
	VoicemailEnabled  bool     `json:"voicemail_enabled"`
	Greeting          string   `json:"greeting"`
}

// Config reads or updates a business's triage configuration.
func (h *VoiceHandler) Config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
		if businessID == "" {
			http.Error(w, "business_id is required", http.StatusBadRequest)
			return
		}
		cfg, err := h.repo.Config(r.Context(), businessID)
		if err != nil {
			h.logger.Error("load config failed", "err", err)
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}
		if len(cfg.EmergencyKeywords) == 0 {
			cfg.EmergencyKeywords = triage.DefaultEmergencyKeywords
		}
		writeJSON(w, http.StatusOK, configResponse{
			EmergencyKeywords: cfg.EmergencyKeywords,
			TransferNumber:    cfg.TransferNumber,
			VoicemailEnabled:  cfg.VoicemailEnabled,
			Greeting:          cfg.Greeting,
		})
	case http.MethodPut, http.MethodPost:
		var req struct {
			BusinessID string `json:"business_id"`
			configResponse
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.BusinessID = strings.TrimSpace(req.BusinessID)
		if req.BusinessID == "" {
			http.Error(w, "business_id is required", http.StatusBadRequest)
			return
		}
		err := h.repo.UpdateConfig(r.Context(), req.BusinessID, triage.BusinessConfig{
			EmergencyKeywords: req.EmergencyKeywords,
			TransferNumber:    strings.TrimSpace(req.TransferNumber),
			VoicemailEnabled:  req.VoicemailEnabled,
			Greeting:          strings.TrimSpace(req.Greeting),
		})
		if err != nil {
			h.logger.Error("update config failed", "err", err)
			http.Error(w, "failed to update config", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// CallLogs lists recent triage summaries for a business.
func (h *VoiceHandler) CallLogs(w http.ResponseWriter, r *http.Request) {
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

	logs, err := h.repo.ListCallLogs(r.Context(), businessID, limit)
	if err != nil {
		h.logger.Error("list call logs failed", "err", err)
		http.Error(w, "failed to list call logs", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		items = append(items, map[string]any{
			"id":           l.ID,
			"caller_id":    l.CallerID,
			"channel":      l.Channel,
			"intent":       l.Intent,
			"action":       l.Action,
			"confidence":   l.Confidence,
			"is_emergency": l.IsEmergency,
			"created_at":   l.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"call_logs": items})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
