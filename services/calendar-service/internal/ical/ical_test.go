package ical

import (
	"strings"
	"testing"
	"time"
)

func TestCalendarLayout(t *testing.T) {
	stamp := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	got := string(Calendar([]Event{{
		UID:         "appointment-a1@smallbizagent",
		Start:       time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		End:         time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
		Summary:     "Haircut",
		Description: "Customer c1",
		Stamp:       stamp,
	}}))

	want := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + ProdID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:appointment-a1@smallbizagent",
		"DTSTAMP:20260302T080000Z",
		"DTSTART:20260302T143000Z",
		"DTEND:20260302T153000Z",
		"SUMMARY:Haircut",
		"DESCRIPTION:Customer c1",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	if got != want {
		t.Fatalf("calendar mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestCalendarEmptyDescriptionStillEmitted(t *testing.T) {
	got := string(Calendar([]Event{{
		UID:     "appointment-a2@smallbizagent",
		Start:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Summary: "Consultation",
		Stamp:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}}))
	if !strings.Contains(got, "DESCRIPTION:\r\n") {
		t.Fatalf("event without a description must still carry the property:\n%q", got)
	}
}

func TestCalendarUsesCRLF(t *testing.T) {
	out := string(Calendar(nil))
	for _, line := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		if strings.Contains(line, "\n") {
			t.Fatalf("line %q contains a bare newline", line)
		}
	}
	if !strings.HasSuffix(out, "END:VCALENDAR\r\n") {
		t.Fatalf("feed does not end with END:VCALENDAR CRLF: %q", out)
	}
}

func TestFormatUTCConvertsZones(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	got := FormatUTC(time.Date(2026, 3, 2, 9, 0, 0, 0, est))
	if got != "20260302T140000Z" {
		t.Fatalf("FormatUTC = %q, want 20260302T140000Z", got)
	}
}

func TestEscapeText(t *testing.T) {
	got := string(Calendar([]Event{{
		UID:     "u@x",
		Start:   time.Unix(0, 0),
		End:     time.Unix(0, 0),
		Summary: "Cut; color, and\nstyle",
		Stamp:   time.Unix(0, 0),
	}}))
	if !strings.Contains(got, `SUMMARY:Cut\; color\, and\nstyle`) {
		t.Fatalf("summary not escaped: %q", got)
	}
}

func TestExtractVEventsRoundTrip(t *testing.T) {
	events := []Event{
		{UID: "a@x", Start: time.Unix(1000, 0), End: time.Unix(2000, 0), Summary: "one", Stamp: time.Unix(0, 0)},
		{UID: "b@x", Start: time.Unix(3000, 0), End: time.Unix(4000, 0), Summary: "two", Stamp: time.Unix(0, 0)},
	}
	doc := Calendar(events)

	blocks := ExtractVEvents(doc)
	if len(blocks) != 2 {
		t.Fatalf("extracted %d blocks, want 2", len(blocks))
	}
	if !strings.Contains(blocks[0], "UID:a@x") || !strings.Contains(blocks[1], "UID:b@x") {
		t.Fatalf("blocks out of order or missing UIDs: %v", blocks)
	}

	rebuilt := CalendarFromBlocks(blocks)
	if string(rebuilt) != string(doc) {
		t.Fatalf("rebuild mismatch:\ngot:\n%q\nwant:\n%q", rebuilt, doc)
	}
}
