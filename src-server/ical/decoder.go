package ical

import (
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
)

// EventDecoder is the standards-parse step of the pipeline. Implementations
// turn pre-cleaned iCalendar text into neutral DecodedEvent views; all the
// tolerant fallback behavior stays outside, so the parsing facility can be
// swapped without touching it.
type EventDecoder interface {
	DecodeEvents(raw string) ([]DecodedEvent, error)
}

// DecodedEvent is one VEVENT exactly as the standards parser saw it.
type DecodedEvent struct {
	UID          string
	Summary      string
	Description  string
	Location     string
	Organizer    string
	RecurrenceID string
	RRule        string
	Sequence     int
	Start        DecodedTime
	End          DecodedTime
	Stamp        DecodedTime
	Attendees    []DecodedAttendee
}

// DecodedTime keeps the raw property value next to the parsed one; all-day
// detection needs the wall-clock text, not the UTC conversion.
type DecodedTime struct {
	Value    time.Time
	RawValue string
	TZID     string
	DateOnly bool
	Set      bool
}

// DecodedAttendee is an unclassified ATTENDEE property.
type DecodedAttendee struct {
	Value  string
	Params map[string]string
}

// goIcalDecoder adapts github.com/emersion/go-ical.
type goIcalDecoder struct{}

func (goIcalDecoder) DecodeEvents(raw string) ([]DecodedEvent, error) {
	cal, err := goical.NewDecoder(strings.NewReader(raw)).Decode()
	if err != nil {
		return nil, err
	}
	var events []DecodedEvent
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		events = append(events, decodeComponent(comp))
	}
	return events, nil
}

func decodeComponent(comp *goical.Component) DecodedEvent {
	ev := DecodedEvent{
		UID:          propValue(comp, goical.PropUID),
		Summary:      unescapeText(propValue(comp, goical.PropSummary)),
		Description:  unescapeText(propValue(comp, goical.PropDescription)),
		Location:     unescapeText(propValue(comp, goical.PropLocation)),
		Organizer:    propValue(comp, goical.PropOrganizer),
		RecurrenceID: propValue(comp, goical.PropRecurrenceID),
		RRule:        propValue(comp, goical.PropRecurrenceRule),
		Start:        decodeTime(comp.Props.Get(goical.PropDateTimeStart)),
		End:          decodeTime(comp.Props.Get(goical.PropDateTimeEnd)),
		Stamp:        decodeTime(comp.Props.Get(goical.PropDateTimeStamp)),
	}
	if seq := propValue(comp, goical.PropSequence); seq != "" {
		if n, err := strconv.Atoi(seq); err == nil {
			ev.Sequence = n
		}
	}
	for _, prop := range comp.Props[goical.PropAttendee] {
		params := make(map[string]string, len(prop.Params))
		for name := range prop.Params {
			params[strings.ToUpper(name)] = prop.Params.Get(name)
		}
		ev.Attendees = append(ev.Attendees, DecodedAttendee{
			Value:  strings.TrimSpace(prop.Value),
			Params: params,
		})
	}
	return ev
}

func propValue(comp *goical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// unescapeText resolves RFC5545 3.3.11 TEXT escapes.
func unescapeText(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n', 'N':
				sb.WriteByte('\n')
			default:
				sb.WriteByte(s[i])
			}
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// decodeTime runs the library conversion first, then a list of fallback
// layouts seen in the wild. Everything is normalized to UTC.
func decodeTime(prop *goical.Prop) DecodedTime {
	if prop == nil {
		return DecodedTime{}
	}
	dt := DecodedTime{
		RawValue: strings.TrimSpace(prop.Value),
		TZID:     prop.Params.Get("TZID"),
	}
	if strings.EqualFold(prop.Params.Get("VALUE"), "DATE") || dateOnlyValuePattern.MatchString(dt.RawValue) {
		dt.DateOnly = true
	}
	if t, err := prop.DateTime(time.UTC); err == nil {
		dt.Value = t.UTC()
		dt.Set = true
		return dt
	}
	for _, layout := range []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
		time.RFC3339,
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, dt.RawValue); err == nil {
			dt.Value = t.UTC()
			dt.Set = true
			return dt
		}
	}
	return dt
}
