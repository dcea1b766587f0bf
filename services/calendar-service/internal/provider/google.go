package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

const googleCalendarID = "primary"

// GoogleAdapter mirrors appointments into the business owner's primary
// Google calendar through the Calendar API.
type GoogleAdapter struct {
	tokens TokenSource
	conns  ConnectionChecker
}

func NewGoogleAdapter(tokens TokenSource, conns ConnectionChecker) *GoogleAdapter {
	return &GoogleAdapter{tokens: tokens, conns: conns}
}

func (g *GoogleAdapter) Kind() Kind { return KindGoogle }

func (g *GoogleAdapter) Connected(ctx context.Context, businessID string) (bool, error) {
	return g.conns.IsConnected(ctx, businessID, KindGoogle)
}

func (g *GoogleAdapter) SyncAppointment(ctx context.Context, businessID string, appt model.Appointment) (string, error) {
	svc, err := g.service(ctx, businessID)
	if err != nil {
		return "", err
	}

	ev := &calendar.Event{
		Summary:     eventSummary(appt),
		Description: eventDescription(appt),
		Start:       &calendar.EventDateTime{DateTime: appt.StartTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: appt.EndTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}

	if appt.GoogleEventID != "" {
		updated, err := svc.Events.Update(googleCalendarID, appt.GoogleEventID, ev).Context(ctx).Do()
		if err == nil {
			return updated.Id, nil
		}
		// The stored id can go stale when the owner deletes the event by
		// hand; fall through and recreate it.
		if !isGoneGoogle(err) {
			return "", fmt.Errorf("google: update event %s: %w", appt.GoogleEventID, err)
		}
	}

	created, err := svc.Events.Insert(googleCalendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google: insert event: %w", err)
	}
	return created.Id, nil
}

func (g *GoogleAdapter) DeleteAppointment(ctx context.Context, businessID, eventID string) error {
	svc, err := g.service(ctx, businessID)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(googleCalendarID, eventID).Context(ctx).Do(); err != nil && !isGoneGoogle(err) {
		return fmt.Errorf("google: delete event %s: %w", eventID, err)
	}
	return nil
}

func (g *GoogleAdapter) service(ctx context.Context, businessID string) (*calendar.Service, error) {
	tok, err := g.tokens.AccessToken(ctx, businessID, KindGoogle)
	if err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("google: new calendar service: %w", err)
	}
	return svc, nil
}

func isGoneGoogle(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
