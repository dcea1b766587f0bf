// Package bookingapi is the receptionist's client for the booking service.
// The default transport is plain HTTP JSON against the booking service's
// public endpoints.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrConflict is returned when the requested slot is already booked. The
// wrapping Conflict carries the booking service's suggested alternatives.
var ErrConflict = errors.New("bookingapi: slot already booked")

type Conflict struct {
	Alternatives []Slot
}

func (c *Conflict) Error() string { return ErrConflict.Error() }
func (c *Conflict) Unwrap() error { return ErrConflict }

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type SlotQuery struct {
	BusinessID      string
	RangeStart      time.Time
	RangeEnd        time.Time
	ServiceID       string
	StaffID         string
	DurationMinutes int
}

type CreateRequest struct {
	BusinessID string `json:"business_id"`
	CustomerID string `json:"customer_id"`
	StaffID    string `json:"staff_id,omitempty"`
	ServiceID  string `json:"service_id,omitempty"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type Appointment struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// Client is what the triage engine needs from the booking service.
type Client interface {
	IsTimeSlotAvailable(ctx context.Context, businessID string, start, end time.Time, staffID string) (bool, error)
	FindSlots(ctx context.Context, q SlotQuery) ([]Slot, error)
	CreateAppointment(ctx context.Context, req CreateRequest) (Appointment, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, client: client}
}

func (c *HTTPClient) IsTimeSlotAvailable(ctx context.Context, businessID string, start, end time.Time, staffID string) (bool, error) {
	q := url.Values{}
	q.Set("business_id", businessID)
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	if staffID != "" {
		q.Set("staff_id", staffID)
	}

	var out struct {
		Available bool `json:"available"`
	}
	if err := c.get(ctx, "/api/v1/public/availability?"+q.Encode(), &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *HTTPClient) FindSlots(ctx context.Context, sq SlotQuery) ([]Slot, error) {
	q := url.Values{}
	q.Set("business_id", sq.BusinessID)
	q.Set("start", sq.RangeStart.Format(time.RFC3339))
	q.Set("end", sq.RangeEnd.Format(time.RFC3339))
	if sq.ServiceID != "" {
		q.Set("service_id", sq.ServiceID)
	}
	if sq.StaffID != "" {
		q.Set("staff_id", sq.StaffID)
	}
	if sq.DurationMinutes > 0 {
		q.Set("duration_minutes", strconv.Itoa(sq.DurationMinutes))
	}

	var out struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.get(ctx, "/api/v1/public/slots?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (c *HTTPClient) CreateAppointment(ctx context.Context, req CreateRequest) (Appointment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Appointment{}, fmt.Errorf("bookingapi: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/public/book", bytes.NewReader(body))
	if err != nil {
		return Appointment{}, fmt.Errorf("bookingapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Appointment{}, fmt.Errorf("bookingapi: book: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var appt Appointment
		if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
			return Appointment{}, fmt.Errorf("bookingapi: decode booking: %w", err)
		}
		return appt, nil
	case http.StatusConflict:
		var conflict struct {
			Alternatives []Slot `json:"alternatives"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			return Appointment{}, &Conflict{}
		}
		return Appointment{}, &Conflict{Alternatives: conflict.Alternatives}
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Appointment{}, fmt.Errorf("bookingapi: book: status %d", resp.StatusCode)
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("bookingapi: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bookingapi: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bookingapi: get %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
