package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/storage"
	syncpkg "github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/sync"
)

type CalendarHandler struct {
	orchestrator *syncpkg.Orchestrator
	repo         *storage.Repository
	apple        *provider.AppleAdapter
	publicURL    string
	logger       *slog.Logger
}

func NewCalendarHandler(
	orchestrator *syncpkg.Orchestrator,
	repo *storage.Repository,
	apple *provider.AppleAdapter,
	publicURL string,
	logger *slog.Logger,
) *CalendarHandler {
	return &CalendarHandler{
		orchestrator: orchestrator,
		repo:         repo,
		apple:        apple,
		publicURL:    strings.TrimRight(publicURL, "/"),
		logger:       logger,
	}
}

type syncRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type providerOutcome struct {
	Synced  bool   `json:"synced"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Sync pushes one appointment to every connected provider on demand. The
// normal path is event driven; this endpoint exists for retries and admin
// tooling.
func (h *CalendarHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	results, err := h.orchestrator.SyncAppointment(r.Context(), strings.TrimSpace(req.AppointmentID))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("manual sync failed", "err", err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": outcomes(results)})
}

// Unsync removes an appointment's events from every provider holding one.
func (h *CalendarHandler) Unsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	results, err := h.orchestrator.DeleteAppointment(r.Context(), strings.TrimSpace(req.AppointmentID))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("manual unsync failed", "err", err)
		http.Error(w, "unsync failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": outcomes(results)})
}

// Status reports which providers a business is connected to.
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	connected, err := h.repo.ListConnectedProviders(r.Context(), businessID)
	if err != nil {
		h.logger.Error("list connected providers failed", "err", err)
		http.Error(w, "failed to load status", http.StatusInternalServerError)
		return
	}

	status := make(map[string]bool, len(provider.Kinds))
	for _, k := range provider.Kinds {
		status[string(k)] = false
	}
	for _, k := range connected {
		status[string(k)] = true
	}
	writeJSON(w, http.StatusOK, status)
}

type credentialsRequest struct {
	BusinessID   string `json:"business_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// Credentials stores OAuth tokens for google or microsoft. Apple connects
// through Subscribe; it has no tokens to store.
func (h *CalendarHandler) Credentials(kind provider.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.BusinessID = strings.TrimSpace(req.BusinessID)
		if req.BusinessID == "" || strings.TrimSpace(req.AccessToken) == "" {
			http.Error(w, "business_id and access_token are required", http.StatusBadRequest)
			return
		}

		in := storage.Integration{
			BusinessID:   req.BusinessID,
			Provider:     kind,
			AccessToken:  strings.TrimSpace(req.AccessToken),
			RefreshToken: strings.TrimSpace(req.RefreshToken),
		}
		if req.ExpiresAt != "" {
			exp, err := time.Parse(time.RFC3339, req.ExpiresAt)
			if err != nil {
				http.Error(w, "invalid expires_at", http.StatusBadRequest)
				return
			}
			in.ExpiresAt = &exp
		}

		if err := h.repo.UpsertIntegration(r.Context(), in); err != nil {
			h.logger.Error("store credentials failed", "err", err, "provider", kind)
			http.Error(w, "failed to store credentials", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"provider": string(kind), "status": "connected"})
	}
}

type subscribeRequest struct {
	BusinessID string `json:"business_id"`
}

// Subscribe connects a business to Apple Calendar by publishing its feed and
// returning the URL to add as a calendar subscription.
func (h *CalendarHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.BusinessID) == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	businessID := strings.TrimSpace(req.BusinessID)

	if err := h.repo.UpsertIntegration(r.Context(), storage.Integration{
		BusinessID: businessID,
		Provider:   provider.KindApple,
	}); err != nil {
		h.logger.Error("store apple integration failed", "err", err)
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	if err := h.apple.EnsureFeed(businessID); err != nil {
		h.logger.Error("publish apple feed failed", "err", err)
		http.Error(w, "failed to publish feed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"feed_url": h.publicURL + "/calendar/subscriptions/business_" + businessID + "_calendar.ics",
	})
}

type disconnectRequest struct {
	BusinessID string `json:"business_id"`
	Provider   string `json:"provider"`
}

func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	kind, ok := provider.ParseKind(strings.TrimSpace(req.Provider))
	if !ok || strings.TrimSpace(req.BusinessID) == "" {
		http.Error(w, "business_id and provider are required", http.StatusBadRequest)
		return
	}

	err := h.repo.DeleteIntegration(r.Context(), strings.TrimSpace(req.BusinessID), kind)
	if storage.IsNotFound(err) {
		http.Error(w, "integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("disconnect failed", "err", err, "provider", kind)
		http.Error(w, "failed to disconnect", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": string(kind), "status": "disconnected"})
}

// Feeds serves the published .ics documents under /calendar/. Apple Calendar
// polls the subscription URL; individual event files are served for
// debugging.
func (h *CalendarHandler) Feeds(feedDir string) http.Handler {
	fs := http.FileServer(http.Dir(feedDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := path.Base(r.URL.Path)
		if !strings.HasPrefix(name, "business_") || !strings.HasSuffix(name, ".ics") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		http.StripPrefix("/calendar/", fs).ServeHTTP(w, r)
	})
}

func outcomes(results map[provider.Kind]syncpkg.ProviderResult) map[string]providerOutcome {
	out := make(map[string]providerOutcome, len(results))
	for kind, res := range results {
		o := providerOutcome{Skipped: !res.Attempted}
		if res.Attempted {
			o.Synced = res.Err == nil
			o.EventID = res.EventID
			if res.Err != nil {
				o.Error = res.Err.Error()
			}
		}
		out[string(kind)] = o
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
