package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/ical"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

const uidDomain = "smallbizagent"

// AppleAdapter has no API to push into. Apple Calendar pulls a per-business
// .ics feed we publish over HTTPS, so every mutation rewrites the event
// fragment on disk and rebuilds the full feed from the fragments that remain.
type AppleAdapter struct {
	conns ConnectionChecker
	dir   string
	now   func() time.Time
}

func NewAppleAdapter(conns ConnectionChecker, feedDir string) *AppleAdapter {
	return &AppleAdapter{conns: conns, dir: feedDir, now: time.Now}
}

func (a *AppleAdapter) Kind() Kind { return KindApple }

func (a *AppleAdapter) Connected(ctx context.Context, businessID string) (bool, error) {
	return a.conns.IsConnected(ctx, businessID, KindApple)
}

func (a *AppleAdapter) SyncAppointment(ctx context.Context, businessID string, appt model.Appointment) (string, error) {
	uid := eventUID(appt.ID)
	doc := ical.Calendar([]ical.Event{{
		UID:         uid,
		Start:       appt.StartTime,
		End:         appt.EndTime,
		Summary:     eventSummary(appt),
		Description: eventDescription(appt),
		Stamp:       a.now(),
	}})

	if err := os.MkdirAll(filepath.Join(a.dir, "events"), 0o755); err != nil {
		return "", fmt.Errorf("apple: create events dir: %w", err)
	}
	if err := writeFileAtomic(a.fragmentPath(businessID, appt.ID), doc); err != nil {
		return "", fmt.Errorf("apple: write event fragment: %w", err)
	}
	if err := a.rebuildFeed(businessID); err != nil {
		return "", err
	}
	return uid, nil
}

func (a *AppleAdapter) DeleteAppointment(ctx context.Context, businessID, eventID string) error {
	apptID := appointmentIDFromUID(eventID)
	if apptID == "" {
		return nil
	}
	if err := os.Remove(a.fragmentPath(businessID, apptID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("apple: remove event fragment: %w", err)
	}
	return a.rebuildFeed(businessID)
}

// FeedPath is the on-disk location of a business's subscription feed.
func (a *AppleAdapter) FeedPath(businessID string) string {
	return filepath.Join(a.dir, "subscriptions", fmt.Sprintf("business_%s_calendar.ics", businessID))
}

// EnsureFeed creates an empty feed for a business that has just subscribed
// and has no synced appointments yet.
func (a *AppleAdapter) EnsureFeed(businessID string) error {
	if _, err := os.Stat(a.FeedPath(businessID)); err == nil {
		return nil
	}
	return a.rebuildFeed(businessID)
}

func (a *AppleAdapter) fragmentPath(businessID, appointmentID string) string {
	return filepath.Join(a.dir, "events", fmt.Sprintf("business_%s_event_%s.ics", businessID, appointmentID))
}

// rebuildFeed regenerates the subscription feed from every fragment that
// still exists for the business.
func (a *AppleAdapter) rebuildFeed(businessID string) error {
	pattern := filepath.Join(a.dir, "events", fmt.Sprintf("business_%s_event_*.ics", businessID))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("apple: glob fragments: %w", err)
	}
	sort.Strings(paths)

	var blocks []string
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("apple: read fragment %s: %w", p, err)
		}
		blocks = append(blocks, ical.ExtractVEvents(raw)...)
	}

	feed := a.FeedPath(businessID)
	if err := os.MkdirAll(filepath.Dir(feed), 0o755); err != nil {
		return fmt.Errorf("apple: create subscriptions dir: %w", err)
	}
	if err := writeFileAtomic(feed, ical.CalendarFromBlocks(blocks)); err != nil {
		return fmt.Errorf("apple: write feed: %w", err)
	}
	return nil
}

func eventUID(appointmentID string) string {
	return fmt.Sprintf("appointment-%s@%s", appointmentID, uidDomain)
}

func appointmentIDFromUID(uid string) string {
	s := strings.TrimPrefix(uid, "appointment-")
	s = strings.TrimSuffix(s, "@"+uidDomain)
	if s == uid {
		return ""
	}
	return s
}

// writeFileAtomic writes via a temp file and rename so a concurrent feed
// fetch never sees a half-written document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ics-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
