package bookingapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsTimeSlotAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/public/availability" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("business_id") != "biz-1" || q.Get("staff_id") != "staff-1" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]bool{"available": true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ok, err := c.IsTimeSlotAvailable(context.Background(), "biz-1", start, start.Add(time.Hour), "staff-1")
	if err != nil {
		t.Fatalf("IsTimeSlotAvailable: %v", err)
	}
	if !ok {
		t.Fatalf("available = false, want true")
	}
}

func TestFindSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"slots": []Slot{
			{Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), Available: true},
		}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())
	slots, err := c.FindSlots(context.Background(), SlotQuery{
		BusinessID: "biz-1",
		RangeStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Available {
		t.Fatalf("slots = %+v", slots)
	}
}

func TestCreateAppointmentConflictCarriesAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "time slot already booked",
			"alternatives": []Slot{
				{Start: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), Available: true},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())
	_, err := c.CreateAppointment(context.Background(), CreateRequest{
		BusinessID: "biz-1", CustomerID: "cust-1", StartTime: "2026-03-02T10:00:00Z",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	var conflict *Conflict
	if !errors.As(err, &conflict) || len(conflict.Alternatives) != 1 {
		t.Fatalf("conflict alternatives not carried: %v", err)
	}
}

func TestCreateAppointmentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.CustomerID != "cust-1" {
			t.Errorf("customer_id = %s", req.CustomerID)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Appointment{AppointmentID: "appt-1", Status: "scheduled"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())
	appt, err := c.CreateAppointment(context.Background(), CreateRequest{
		BusinessID: "biz-1", CustomerID: "cust-1", StartTime: "2026-03-02T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if appt.AppointmentID != "appt-1" {
		t.Fatalf("appointment = %+v", appt)
	}
}
