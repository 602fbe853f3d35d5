// The `ical` package parses and serializes iCalendar event payloads coming
// from CalDAV servers and the clients behind them.
//
// # References:
// - RFC5545: https://datatracker.ietf.org/doc/html/rfc5545
// - RFC5546: https://datatracker.ietf.org/doc/html/rfc5546
//
// # Notes:
// - Real-world feeds are frequently corrupted: SCHEDULE-STATUS parameters
//   leak into RRULE lines, ATTENDEE lines get split across physical lines
//   without folding whitespace, bare mailto: fragments float around. Parsing
//   runs an ordered pipeline of named repair passes before the standards
//   parse and a second, more aggressive pipeline when the standards parser
//   still refuses the payload.
// - Only VEVENT components are handled. VTIMEZONE and VALARM sections,
//   including their sub-sections, are ignored. All datetimes are stored in
//   UTC.
// - Attendee-vs-resource classification happens exactly once, at parse time.
//   Downstream code never re-inspects raw ATTENDEE shapes.
package ical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ProdID identifies payloads this server synthesized itself.
const ProdID = "-//remcal//remcal v1.0//EN"

// DefaultSummary replaces a missing SUMMARY; an event with valid dates is
// never dropped just because it has no title.
const DefaultSummary = "Untitled Event"

// Attendee is a person invited to an event.
type Attendee struct {
	Email          string
	Name           string
	Role           string
	Status         string
	ScheduleStatus string
}

// Resource is bookable equipment or a room that rode along in the original
// attendee list. Resolved out of the attendee set exactly once, here.
type Resource struct {
	Name       string
	AdminEmail string
	Type       string
}

// EventRecord is the structured form of one VEVENT.
type EventRecord struct {
	UID            string
	Summary        string
	Description    string
	Location       string
	Organizer      string
	StartDate      time.Time
	EndDate        time.Time
	AllDay         bool
	Timezone       string
	RecurrenceRule string
	Sequence       int
	Attendees      []Attendee
	Resources      []Resource

	// remote object metadata, blank for locally created events
	ETag string
	URL  string

	// last known raw ICS for this object, after line-ending normalization
	// and repair; the serializer substitutes into it to preserve vendor
	// properties it does not understand
	RawData string

	// true when the aggressive repair pipeline had to run
	Repaired bool
}

var (
	dateOnlyValuePattern = regexp.MustCompile(`^\d{8}$`)
	rruleRawLinePattern  = regexp.MustCompile(`(?m)^RRULE[^:\r\n]*:(.+)$`)
	sequenceLinePattern  = regexp.MustCompile(`(?m)^SEQUENCE[^:\r\n]*:(\d+)`)
	emailPattern         = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Parser turns raw iCalendar text into EventRecords. The standards-parse
// step sits behind the EventDecoder interface so the underlying facility is
// swappable; everything tolerant lives in this package.
type Parser struct {
	dec EventDecoder
}

// NewParser returns a Parser backed by the default standards decoder.
func NewParser() *Parser {
	return &Parser{dec: goIcalDecoder{}}
}

// NewParserWithDecoder swaps the standards-parse step, for tests and for
// the day the default library has to go.
func NewParserWithDecoder(dec EventDecoder) *Parser {
	return &Parser{dec: dec}
}

// ParseEvent parses one calendar object. etag and url are optional remote
// metadata carried through onto the record. Returns nil only when the
// payload has neither usable dates nor a derivable summary, or when it
// cannot be decoded at all even after repair.
func (p *Parser) ParseEvent(raw string, etag string, url string) (*EventRecord, *CustomError) {
	if strings.TrimSpace(raw) == "" {
		return nil, NewCustomError("empty payload", map[string]any{"url": url})
	}

	cleaned, _ := applyPasses(raw, precleanPasses)

	decoded, decodeErr := p.dec.DecodeEvents(cleaned)
	repaired := false
	if decodeErr != nil || len(decoded) == 0 {
		rescued, changed := applyPasses(cleaned, aggressivePasses)
		if changed {
			repaired = true
			cleaned = rescued
			decoded, decodeErr = p.dec.DecodeEvents(rescued)
		}
	}
	if decodeErr != nil {
		return nil, NewCustomError("can't parse VEVENT", map[string]any{
			"err": decodeErr,
			"url": url,
		})
	}
	if len(decoded) == 0 {
		return nil, NewCustomError("no VEVENT component found", map[string]any{"url": url})
	}

	ev := pickMasterEvent(decoded)

	summary := strings.TrimSpace(ev.Summary)
	if !ev.Start.Set && !ev.End.Set && summary == "" {
		return nil, NewCustomError("event has neither usable dates nor a summary", map[string]any{
			"uid": ev.UID,
			"url": url,
		})
	}

	rec := &EventRecord{
		UID:         strings.TrimSpace(ev.UID),
		Summary:     summary,
		Description: ev.Description,
		Location:    ev.Location,
		Organizer:   ev.Organizer,
		Sequence:    ev.Sequence,
		ETag:        etag,
		URL:         url,
		RawData:     cleaned,
		Repaired:    repaired,
	}
	if rec.Summary == "" {
		rec.Summary = DefaultSummary
	}
	if rec.UID == "" {
		rec.UID = derivedUID(rec.Summary, ev.Start)
	}

	p.resolveDates(rec, ev)
	p.resolveRecurrence(rec, ev, cleaned)

	rec.Attendees, rec.Resources = classifyAttendees(ev.Attendees)
	if len(ev.Attendees) == 0 {
		rec.Attendees, rec.Resources = scanRawAttendees(cleaned)
	}

	return rec, nil
}

// resolveDates fills StartDate/EndDate/AllDay/Timezone. A start that is
// date-only or lands exactly on 00:00:00 wall-clock means all-day; a missing
// end is start+1 day for all-day events and start+1 hour otherwise.
func (p *Parser) resolveDates(rec *EventRecord, ev DecodedEvent) {
	switch {
	case ev.Start.Set:
		rec.StartDate = ev.Start.Value
		rec.AllDay = isAllDayStart(ev.Start)
	case ev.Stamp.Set:
		rec.StartDate = ev.Stamp.Value
	default:
		rec.StartDate = time.Now().UTC()
	}

	if ev.End.Set {
		rec.EndDate = ev.End.Value
	} else if rec.AllDay {
		rec.EndDate = rec.StartDate.Add(24 * time.Hour)
	} else {
		rec.EndDate = rec.StartDate.Add(time.Hour)
	}

	rec.Timezone = ev.Start.TZID
	if rec.Timezone == "" {
		rec.Timezone = "UTC"
	}
}

// resolveRecurrence prefers the structured rule from the decoder; when it is
// absent or does not even begin with FREQ=, the raw RRULE line is extracted
// by regex. Either way the result goes through the sanitizer, which is
// idempotent on clean rules.
func (p *Parser) resolveRecurrence(rec *EventRecord, ev DecodedEvent, cleaned string) {
	rule := strings.TrimSpace(ev.RRule)
	if rule == "" || !strings.HasPrefix(strings.ToUpper(rule), "FREQ=") {
		if m := rruleRawLinePattern.FindStringSubmatch(cleaned); m != nil {
			rule = m[1]
		}
	}
	rec.RecurrenceRule = SanitizeRRule(rule)
}

func isAllDayStart(start DecodedTime) bool {
	if start.DateOnly {
		return true
	}
	raw := strings.TrimSpace(start.RawValue)
	if strings.HasSuffix(raw, "T000000") || strings.HasSuffix(raw, "T000000Z") {
		return true
	}
	if start.TZID == "" {
		h, m, s := start.Value.Clock()
		return h == 0 && m == 0 && s == 0
	}
	return false
}

// pickMasterEvent prefers the VEVENT without a RECURRENCE-ID; recurrence
// overrides only make sense relative to a master this record model does not
// track.
func pickMasterEvent(events []DecodedEvent) DecodedEvent {
	for _, ev := range events {
		if ev.RecurrenceID == "" {
			return ev
		}
	}
	return events[0]
}

// derivedUID builds a stable fallback UID so that re-pulling the same
// UID-less object does not multiply records.
func derivedUID(summary string, start DecodedTime) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", summary, start.Value.Unix())))
	return hex.EncodeToString(h[:8]) + "@remcal.generated"
}

// EmbeddedSequence reports the SEQUENCE counter carried in raw iCalendar
// text, 0 when none is present.
func EmbeddedSequence(raw string) int {
	if m := sequenceLinePattern.FindStringSubmatch(raw); m != nil {
		n := 0
		if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
