package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// MicrosoftAdapter mirrors appointments into the business owner's Outlook
// calendar through the Microsoft Graph events API.
type MicrosoftAdapter struct {
	tokens  TokenSource
	conns   ConnectionChecker
	client  *http.Client
	baseURL string
}

func NewMicrosoftAdapter(tokens TokenSource, conns ConnectionChecker, client *http.Client) *MicrosoftAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &MicrosoftAdapter{tokens: tokens, conns: conns, client: client, baseURL: defaultGraphBaseURL}
}

func (m *MicrosoftAdapter) Kind() Kind { return KindMicrosoft }

func (m *MicrosoftAdapter) Connected(ctx context.Context, businessID string) (bool, error) {
	return m.conns.IsConnected(ctx, businessID, KindMicrosoft)
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEvent struct {
	ID      string        `json:"id,omitempty"`
	Subject string        `json:"subject"`
	Body    graphBody     `json:"body"`
	Start   graphDateTime `json:"start"`
	End     graphDateTime `json:"end"`
}

func (m *MicrosoftAdapter) SyncAppointment(ctx context.Context, businessID string, appt model.Appointment) (string, error) {
	payload := graphEvent{
		Subject: eventSummary(appt),
		Body:    graphBody{ContentType: "text", Content: eventDescription(appt)},
		Start:   graphDateTime{DateTime: appt.StartTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:     graphDateTime{DateTime: appt.EndTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}

	if appt.MicrosoftEventID != "" {
		ev, status, err := m.do(ctx, businessID, http.MethodPatch, "/me/events/"+appt.MicrosoftEventID, payload)
		if err != nil {
			return "", err
		}
		switch {
		case status == http.StatusOK:
			return ev.ID, nil
		case status == http.StatusNotFound || status == http.StatusGone:
			// Stale id, recreate below.
		default:
			return "", fmt.Errorf("microsoft: update event %s: status %d", appt.MicrosoftEventID, status)
		}
	}

	ev, status, err := m.do(ctx, businessID, http.MethodPost, "/me/events", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("microsoft: create event: status %d", status)
	}
	return ev.ID, nil
}

func (m *MicrosoftAdapter) DeleteAppointment(ctx context.Context, businessID, eventID string) error {
	_, status, err := m.do(ctx, businessID, http.MethodDelete, "/me/events/"+eventID, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return nil
	}
	return fmt.Errorf("microsoft: delete event %s: status %d", eventID, status)
}

func (m *MicrosoftAdapter) do(ctx context.Context, businessID, method, path string, payload any) (graphEvent, int, error) {
	tok, err := m.tokens.AccessToken(ctx, businessID, KindMicrosoft)
	if err != nil {
		return graphEvent{}, 0, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return graphEvent{}, 0, fmt.Errorf("microsoft: marshal event: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return graphEvent{}, 0, fmt.Errorf("microsoft: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return graphEvent{}, 0, fmt.Errorf("microsoft: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var ev graphEvent
	if resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
			return graphEvent{}, resp.StatusCode, fmt.Errorf("microsoft: decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return ev, resp.StatusCode, nil
}
