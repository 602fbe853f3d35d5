package ical

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ics(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func wrapEvent(eventLines ...string) string {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//test//EN",
		"BEGIN:VEVENT",
		"UID:u1@example.com",
		"DTSTAMP:20260101T090000Z",
	}, eventLines...)
	all = append(all, "END:VEVENT", "END:VCALENDAR")
	return ics(all...)
}

func TestParseEventBasic(t *testing.T) {
	raw := ics(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//test//EN",
		"BEGIN:VEVENT",
		"UID:evt-1@example.com",
		"DTSTAMP:20260101T090000Z",
		"DTSTART:20260102T130000Z",
		"DTEND:20260102T143000Z",
		"SUMMARY:Team standup",
		"DESCRIPTION:Bring slides\\, demo",
		"LOCATION:HQ floor 3",
		"ORGANIZER;CN=Boss:mailto:boss@example.com",
		"SEQUENCE:2",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	rec, cerr := NewParser().ParseEvent(raw, "\"etag-1\"", "/cal/evt-1.ics")
	require.Nil(t, cerr)
	require.NotNil(t, rec)

	assert.Equal(t, "evt-1@example.com", rec.UID)
	assert.Equal(t, "Team standup", rec.Summary)
	assert.Equal(t, "Bring slides, demo", rec.Description)
	assert.Equal(t, "HQ floor 3", rec.Location)
	assert.Equal(t, "mailto:boss@example.com", rec.Organizer)
	assert.Equal(t, time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), rec.StartDate)
	assert.Equal(t, time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC), rec.EndDate)
	assert.False(t, rec.AllDay)
	assert.Equal(t, "UTC", rec.Timezone)
	assert.Equal(t, 2, rec.Sequence)
	assert.Equal(t, "\"etag-1\"", rec.ETag)
	assert.Equal(t, "/cal/evt-1.ics", rec.URL)
	assert.False(t, rec.Repaired)
}

func TestParseEventAllDayDetection(t *testing.T) {
	tests := []struct {
		name       string
		dtstart    string
		wantAllDay bool
	}{
		{"value date", "DTSTART;VALUE=DATE:20260102", true},
		{"midnight utc without value date", "DTSTART:20260102T000000Z", true},
		{"floating midnight", "DTSTART:20260102T000000", true},
		{"regular timed", "DTSTART:20260102T130000Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := wrapEvent(tt.dtstart, "SUMMARY:x")
			rec, cerr := NewParser().ParseEvent(raw, "", "")
			require.Nil(t, cerr)
			assert.Equal(t, tt.wantAllDay, rec.AllDay)
		})
	}
}

func TestParseEventMissingEndDerived(t *testing.T) {
	t.Run("timed gets one hour", func(t *testing.T) {
		raw := wrapEvent("DTSTART:20260102T130000Z", "SUMMARY:x")
		rec, cerr := NewParser().ParseEvent(raw, "", "")
		require.Nil(t, cerr)
		assert.Equal(t, rec.StartDate.Add(time.Hour), rec.EndDate)
	})
	t.Run("all-day gets one day", func(t *testing.T) {
		raw := wrapEvent("DTSTART;VALUE=DATE:20260102", "SUMMARY:x")
		rec, cerr := NewParser().ParseEvent(raw, "", "")
		require.Nil(t, cerr)
		assert.Equal(t, rec.StartDate.Add(24*time.Hour), rec.EndDate)
	})
}

func TestParseEventNoDates(t *testing.T) {
	t.Run("falls back to dtstamp", func(t *testing.T) {
		dec := fixedDecoder{events: []DecodedEvent{{
			UID:     "u1",
			Summary: "floating",
			Stamp:   DecodedTime{Value: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), RawValue: "20260105T080000Z", Set: true},
		}}}
		rec, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("SUMMARY:floating"), "", "")
		require.Nil(t, cerr)
		assert.Equal(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), rec.StartDate)
		assert.Equal(t, rec.StartDate.Add(time.Hour), rec.EndDate)
	})
	t.Run("falls back to now without dtstamp", func(t *testing.T) {
		dec := fixedDecoder{events: []DecodedEvent{{UID: "u1", Summary: "floating"}}}
		rec, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("SUMMARY:floating"), "", "")
		require.Nil(t, cerr)
		assert.WithinDuration(t, time.Now().UTC(), rec.StartDate, 5*time.Second)
		assert.Equal(t, rec.StartDate.Add(time.Hour), rec.EndDate)
	})
	t.Run("unusable without summary", func(t *testing.T) {
		dec := fixedDecoder{events: []DecodedEvent{{UID: "u1"}}}
		rec, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent(), "", "")
		assert.Nil(t, rec)
		require.NotNil(t, cerr)
	})
}

func TestParseEventDefaultSummary(t *testing.T) {
	dec := fixedDecoder{events: []DecodedEvent{{
		UID:   "u1",
		Start: DecodedTime{Value: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), RawValue: "20260102T130000Z", Set: true},
	}}}
	rec, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("DTSTART:20260102T130000Z"), "", "")
	require.Nil(t, cerr)
	assert.Equal(t, DefaultSummary, rec.Summary)
}

func TestParseEventTimezoneCarried(t *testing.T) {
	raw := wrapEvent("DTSTART;TZID=America/New_York:20260102T130000", "SUMMARY:x")
	rec, cerr := NewParser().ParseEvent(raw, "", "")
	require.Nil(t, cerr)
	assert.Equal(t, "America/New_York", rec.Timezone)
	assert.False(t, rec.AllDay)
}

func TestParseEventRecurrenceSanitized(t *testing.T) {
	tests := []struct {
		name  string
		rrule string
		want  string
	}{
		{"clean", "RRULE:FREQ=WEEKLY;BYDAY=MO,TU", "FREQ=WEEKLY;BYDAY=MO,TU"},
		{"schedule status leak", "RRULE:FREQ=WEEKLY;BYDAY=MO;SCHEDULE-STATUS=2.0", "FREQ=WEEKLY;BYDAY=MO"},
		{"mailto debris", "RRULE:FREQ=WEEKLY;BYDAY=MO:mailto:evil@x.com", "FREQ=WEEKLY;BYDAY=MO"},
		{"unknown params dropped", "RRULE:FREQ=MONTHLY;X-BUSTED=1;BYMONTHDAY=15", "FREQ=MONTHLY;BYMONTHDAY=15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := wrapEvent("DTSTART:20260102T130000Z", "SUMMARY:x", tt.rrule)
			rec, cerr := NewParser().ParseEvent(raw, "", "")
			require.Nil(t, cerr)
			assert.Equal(t, tt.want, rec.RecurrenceRule)
		})
	}
}

func TestParseEventBrokenAttendeeContinuation(t *testing.T) {
	raw := wrapEvent(
		"DTSTART:20260102T130000Z",
		"SUMMARY:x",
		"ATTENDEE;CN=Bob Smith;PARTSTAT=ACCEPTED:mailto:b",
		"ob.smith@example.com",
	)
	rec, cerr := NewParser().ParseEvent(raw, "", "")
	require.Nil(t, cerr)
	require.Len(t, rec.Attendees, 1)
	assert.Equal(t, "bob.smith@example.com", rec.Attendees[0].Email)
	assert.Equal(t, "Bob Smith", rec.Attendees[0].Name)
	assert.Equal(t, "ACCEPTED", rec.Attendees[0].Status)
}

func TestParseEventAttendeeClassification(t *testing.T) {
	raw := wrapEvent(
		"DTSTART:20260102T130000Z",
		"SUMMARY:x",
		"ATTENDEE;CN=Alice;ROLE=REQ-PARTICIPANT;PARTSTAT=ACCEPTED:mailto:alice@example.com",
		"ATTENDEE;CUTYPE=RESOURCE;CN=Projector 1:mailto:projector1@example.com",
		"ATTENDEE;ROLE=NON-PARTICIPANT;CN=Catering:mailto:catering@example.com",
		"ATTENDEE;CN=Room 42:mailto:bookings@example.com",
		"ATTENDEE;CUTYPE=RESOURCE;CN=Projector 1:mailto:projector1@example.com",
	)
	rec, cerr := NewParser().ParseEvent(raw, "", "")
	require.Nil(t, cerr)

	require.Len(t, rec.Attendees, 1)
	assert.Equal(t, "alice@example.com", rec.Attendees[0].Email)
	assert.Equal(t, "REQ-PARTICIPANT", rec.Attendees[0].Role)

	require.Len(t, rec.Resources, 3)
	assert.Equal(t, "Projector 1", rec.Resources[0].Name)
	assert.Equal(t, "Projector", rec.Resources[0].Type)
	assert.Equal(t, "projector1@example.com", rec.Resources[0].AdminEmail)
	assert.Equal(t, "Catering", rec.Resources[1].Name)
	assert.Equal(t, "", rec.Resources[1].Type)
	assert.Equal(t, "Room 42", rec.Resources[2].Name)
	assert.Equal(t, "Room", rec.Resources[2].Type)
}

func TestParseEventUIDHandling(t *testing.T) {
	t.Run("uid preserved", func(t *testing.T) {
		raw := ics(
			"BEGIN:VCALENDAR",
			"VERSION:2.0",
			"PRODID:-//test//test//EN",
			"BEGIN:VEVENT",
			"UID:weird-uid-%%%-123@host",
			"DTSTAMP:20260101T090000Z",
			"DTSTART:20260102T130000Z",
			"SUMMARY:x",
			"END:VEVENT",
			"END:VCALENDAR",
		)
		rec, cerr := NewParser().ParseEvent(raw, "", "")
		require.Nil(t, cerr)
		assert.Equal(t, "weird-uid-%%%-123@host", rec.UID)
	})
	t.Run("missing uid derived deterministically", func(t *testing.T) {
		dec := fixedDecoder{events: []DecodedEvent{{
			Summary: "x",
			Start:   DecodedTime{Value: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), RawValue: "20260102T130000Z", Set: true},
		}}}
		rec1, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("SUMMARY:x"), "", "")
		require.Nil(t, cerr)
		rec2, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("SUMMARY:x"), "", "")
		require.Nil(t, cerr)
		assert.NotEmpty(t, rec1.UID)
		assert.True(t, strings.HasSuffix(rec1.UID, "@remcal.generated"))
		assert.Equal(t, rec1.UID, rec2.UID)
	})
}

func TestParseEventEmptyPayload(t *testing.T) {
	rec, cerr := NewParser().ParseEvent("   ", "", "")
	assert.Nil(t, rec)
	require.NotNil(t, cerr)
}

// flakyDecoder rejects the first decode so the aggressive pipeline has to
// run, then accepts.
type flakyDecoder struct {
	calls  int
	events []DecodedEvent
}

func (d *flakyDecoder) DecodeEvents(string) ([]DecodedEvent, error) {
	d.calls++
	if d.calls == 1 {
		return nil, errors.New("malformed content line")
	}
	return d.events, nil
}

func TestParseEventAggressiveRepairPath(t *testing.T) {
	dec := &flakyDecoder{events: []DecodedEvent{{
		UID:     "rescued-1",
		Summary: "rescued",
		Start:   DecodedTime{Value: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), RawValue: "20260102T130000Z", Set: true},
	}}}
	raw := wrapEvent(
		"DTSTART:20260102T130000Z",
		"SUMMARY:rescued",
		"mailto:stranded@example.com",
	)
	rec, cerr := NewParserWithDecoder(dec).ParseEvent(raw, "", "")
	require.Nil(t, cerr)
	assert.True(t, rec.Repaired)
	assert.Equal(t, 2, dec.calls)
	assert.Equal(t, "rescued-1", rec.UID)
}

// fixedDecoder returns a canned decode, for exercising fallback strategies.
type fixedDecoder struct{ events []DecodedEvent }

func (d fixedDecoder) DecodeEvents(string) ([]DecodedEvent, error) { return d.events, nil }

func TestParseEventRawAttendeeScanFallback(t *testing.T) {
	dec := fixedDecoder{events: []DecodedEvent{{
		UID:     "u1",
		Summary: "x",
		Start:   DecodedTime{Value: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), RawValue: "20260102T130000Z", Set: true},
	}}}
	raw := wrapEvent(
		"DTSTART:20260102T130000Z",
		"SUMMARY:x",
		"ATTENDEE;CN=Alice:mailto:alice@example.com",
		"ATTENDEE;CUTYPE=RESOURCE;CN=Room A:mailto:rooma@example.com",
	)
	rec, cerr := NewParserWithDecoder(dec).ParseEvent(raw, "", "")
	require.Nil(t, cerr)
	require.Len(t, rec.Attendees, 1)
	assert.Equal(t, "alice@example.com", rec.Attendees[0].Email)
	require.Len(t, rec.Resources, 1)
	assert.Equal(t, "Room A", rec.Resources[0].Name)
}

func TestParseEventPicksMasterOverOverride(t *testing.T) {
	start := DecodedTime{Value: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC), RawValue: "20260102T130000Z", Set: true}
	dec := fixedDecoder{events: []DecodedEvent{
		{UID: "u1", Summary: "override", RecurrenceID: "20260109T130000Z", Start: start},
		{UID: "u1", Summary: "master", Start: start},
	}}
	rec, cerr := NewParserWithDecoder(dec).ParseEvent(wrapEvent("SUMMARY:master"), "", "")
	require.Nil(t, cerr)
	assert.Equal(t, "master", rec.Summary)
}
