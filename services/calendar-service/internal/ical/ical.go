// Package ical emits the minimal subset of RFC 5545 needed to publish a
// read-only appointment feed that Apple Calendar subscribes to.
package ical

import (
	"strings"
	"time"
)

const (
	ProdID = "-//SmallBizAgent//Scheduling//EN"

	// crlf is mandated by RFC 5545; bare \n feeds are rejected by some clients.
	crlf = "\r\n"
)

// Event is one VEVENT in a published feed.
type Event struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Stamp       time.Time
}

// FormatUTC renders a timestamp in the compact UTC form RFC 5545 calls
// DATE-TIME with UTC designator.
func FormatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Calendar renders a complete VCALENDAR document containing the given events.
func Calendar(events []Event) []byte {
	var b strings.Builder
	writeHeader(&b)
	for _, e := range events {
		writeEvent(&b, e)
	}
	b.WriteString("END:VCALENDAR" + crlf)
	return []byte(b.String())
}

// CalendarFromBlocks renders a VCALENDAR document around pre-rendered VEVENT
// blocks, used when rebuilding the business feed from stored event fragments.
func CalendarFromBlocks(blocks []string) []byte {
	var b strings.Builder
	writeHeader(&b)
	for _, block := range blocks {
		b.WriteString(block)
		if !strings.HasSuffix(block, crlf) {
			b.WriteString(crlf)
		}
	}
	b.WriteString("END:VCALENDAR" + crlf)
	return []byte(b.String())
}

// ExtractVEvents returns the raw BEGIN:VEVENT..END:VEVENT blocks of a
// document, preserving their line content.
func ExtractVEvents(data []byte) []string {
	var (
		blocks  []string
		current []string
		inEvent bool
	)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "BEGIN:VEVENT":
			inEvent = true
			current = []string{line}
		case line == "END:VEVENT":
			if inEvent {
				current = append(current, line)
				blocks = append(blocks, strings.Join(current, crlf)+crlf)
			}
			inEvent = false
		case inEvent:
			current = append(current, line)
		}
	}
	return blocks
}

func writeHeader(b *strings.Builder) {
	b.WriteString("BEGIN:VCALENDAR" + crlf)
	b.WriteString("VERSION:2.0" + crlf)
	b.WriteString("PRODID:" + ProdID + crlf)
	b.WriteString("CALSCALE:GREGORIAN" + crlf)
	b.WriteString("METHOD:PUBLISH" + crlf)
}

func writeEvent(b *strings.Builder, e Event) {
	stamp := e.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	b.WriteString("BEGIN:VEVENT" + crlf)
	b.WriteString("UID:" + e.UID + crlf)
	b.WriteString("DTSTAMP:" + FormatUTC(stamp) + crlf)
	b.WriteString("DTSTART:" + FormatUTC(e.Start) + crlf)
	b.WriteString("DTEND:" + FormatUTC(e.End) + crlf)
	b.WriteString("SUMMARY:" + escapeText(e.Summary) + crlf)
	// Always present, even empty, so every event carries the same property set.
	b.WriteString("DESCRIPTION:" + escapeText(e.Description) + crlf)
	b.WriteString("END:VEVENT" + crlf)
}

// escapeText applies RFC 5545 TEXT escaping to property values.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}
