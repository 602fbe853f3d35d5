package ical

import (
	"fmt"
	"strings"
	"time"
)

// GenerateICalEvent renders a record back into iCalendar text. When the
// record carries RawData, that text is used as a template: only the
// properties this server manages are substituted, everything else -
// vendor X- properties, CREATED, TRANSP, whatever - passes through
// verbatim. A record without RawData gets a minimal standards-compliant
// VCALENDAR synthesized from scratch.
//
// Output uses CRLF line endings and folds lines longer than 75 octets.
func GenerateICalEvent(rec *EventRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("GenerateICalEvent: nil record")
	}
	if rec.UID == "" {
		return "", fmt.Errorf("GenerateICalEvent: record has no UID")
	}
	if strings.TrimSpace(rec.RawData) != "" {
		return substituteTemplate(rec), nil
	}
	return synthesizeEvent(rec), nil
}

// GenerateICalFeed renders many records into one shared VCALENDAR. Each
// record is rendered on its own, so per-record RawData templates still
// apply, and its VEVENT block is lifted into the wrapper. Records that
// cannot be rendered are skipped.
func GenerateICalFeed(calendarName string, records []*EventRecord) string {
	var sb strings.Builder
	sb.WriteString("BEGIN:VCALENDAR\r\n")
	writeFolded(&sb, "PRODID:"+ProdID)
	sb.WriteString("VERSION:2.0\r\n")
	sb.WriteString("CALSCALE:GREGORIAN\r\n")
	if calendarName != "" {
		writeFolded(&sb, "X-WR-CALNAME:"+escapeText(calendarName))
	}
	for _, rec := range records {
		rendered, err := GenerateICalEvent(rec)
		if err != nil {
			continue
		}
		begin := strings.Index(rendered, "BEGIN:VEVENT")
		end := strings.LastIndex(rendered, "END:VEVENT")
		if begin < 0 || end < begin {
			continue
		}
		sb.WriteString(rendered[begin : end+len("END:VEVENT")])
		sb.WriteString("\r\n")
	}
	sb.WriteString("END:VCALENDAR\r\n")
	return sb.String()
}

func substituteTemplate(rec *EventRecord) string {
	lines := strings.Split(unfoldLines(rec.RawData), "\n")
	now := time.Now().UTC()
	seen := make(map[string]bool)
	out := make([]string, 0, len(lines)+8)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch propertyName(line) {
		case "SUMMARY":
			seen["SUMMARY"] = true
			out = append(out, "SUMMARY:"+escapeText(rec.Summary))
		case "DTSTART":
			seen["DTSTART"] = true
			out = append(out, formatDateProperty("DTSTART", rec.StartDate, rec.AllDay))
		case "DTEND":
			seen["DTEND"] = true
			out = append(out, formatDateProperty("DTEND", rec.EndDate, rec.AllDay))
		case "LOCATION":
			seen["LOCATION"] = true
			if rec.Location != "" {
				out = append(out, "LOCATION:"+escapeText(rec.Location))
			}
		case "DESCRIPTION":
			seen["DESCRIPTION"] = true
			if rec.Description != "" {
				out = append(out, "DESCRIPTION:"+escapeText(rec.Description))
			}
		case "SEQUENCE":
			seen["SEQUENCE"] = true
			out = append(out, fmt.Sprintf("SEQUENCE:%d", rec.Sequence))
		case "DTSTAMP":
			seen["DTSTAMP"] = true
			out = append(out, "DTSTAMP:"+formatUTC(now))
		case "LAST-MODIFIED":
			seen["LAST-MODIFIED"] = true
			out = append(out, "LAST-MODIFIED:"+formatUTC(now))
		case "RRULE":
			seen["RRULE"] = true
			if rule := SanitizeRRule(rec.RecurrenceRule); rule != "" {
				out = append(out, "RRULE:"+rule)
			}
		case "ATTENDEE":
			// attendee lines are rebuilt wholesale before END:VEVENT
			seen["ATTENDEE"] = true
		case "END":
			if strings.EqualFold(strings.TrimSpace(line), "END:VEVENT") {
				out = appendMissingProperties(out, rec, seen, now)
				out = append(out, attendeeLines(rec)...)
			}
			out = append(out, line)
		default:
			out = append(out, line)
		}
	}
	return foldAndJoin(out)
}

// appendMissingProperties covers templates that never carried a property the
// record now has.
func appendMissingProperties(out []string, rec *EventRecord, seen map[string]bool, now time.Time) []string {
	if !seen["SUMMARY"] {
		out = append(out, "SUMMARY:"+escapeText(rec.Summary))
	}
	if !seen["DTSTART"] {
		out = append(out, formatDateProperty("DTSTART", rec.StartDate, rec.AllDay))
	}
	if !seen["DTEND"] {
		out = append(out, formatDateProperty("DTEND", rec.EndDate, rec.AllDay))
	}
	if !seen["DTSTAMP"] {
		out = append(out, "DTSTAMP:"+formatUTC(now))
	}
	if !seen["SEQUENCE"] {
		out = append(out, fmt.Sprintf("SEQUENCE:%d", rec.Sequence))
	}
	if !seen["LOCATION"] && rec.Location != "" {
		out = append(out, "LOCATION:"+escapeText(rec.Location))
	}
	if !seen["DESCRIPTION"] && rec.Description != "" {
		out = append(out, "DESCRIPTION:"+escapeText(rec.Description))
	}
	if !seen["RRULE"] {
		if rule := SanitizeRRule(rec.RecurrenceRule); rule != "" {
			out = append(out, "RRULE:"+rule)
		}
	}
	return out
}

func synthesizeEvent(rec *EventRecord) string {
	now := time.Now().UTC()
	lines := []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + ProdID,
		"VERSION:2.0",
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:" + rec.UID,
		"DTSTAMP:" + formatUTC(now),
		formatDateProperty("DTSTART", rec.StartDate, rec.AllDay),
		formatDateProperty("DTEND", rec.EndDate, rec.AllDay),
		"SUMMARY:" + escapeText(rec.Summary),
	}
	if rec.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(rec.Description))
	}
	if rec.Location != "" {
		lines = append(lines, "LOCATION:"+escapeText(rec.Location))
	}
	if rec.Organizer != "" {
		lines = append(lines, organizerLine(rec.Organizer))
	}
	if rule := SanitizeRRule(rec.RecurrenceRule); rule != "" {
		lines = append(lines, "RRULE:"+rule)
	}
	lines = append(lines, fmt.Sprintf("SEQUENCE:%d", rec.Sequence))
	lines = append(lines, attendeeLines(rec)...)
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return foldAndJoin(lines)
}

// attendeeLines rebuilds the ATTENDEE block from the classified record.
// Attendees without an email cannot be expressed as a cal-address and are
// skipped.
func attendeeLines(rec *EventRecord) []string {
	lines := make([]string, 0, len(rec.Attendees)+len(rec.Resources))
	for _, a := range rec.Attendees {
		if a.Email == "" {
			continue
		}
		var sb strings.Builder
		sb.WriteString("ATTENDEE")
		if a.Name != "" {
			sb.WriteString(";CN=" + a.Name)
		}
		if a.Role != "" {
			sb.WriteString(";ROLE=" + a.Role)
		}
		if a.Status != "" {
			sb.WriteString(";PARTSTAT=" + a.Status)
		}
		sb.WriteString(":mailto:" + a.Email)
		lines = append(lines, sb.String())
	}
	for _, r := range rec.Resources {
		if r.AdminEmail == "" {
			continue
		}
		var sb strings.Builder
		sb.WriteString("ATTENDEE;CUTYPE=RESOURCE")
		if r.Name != "" {
			sb.WriteString(";CN=" + r.Name)
		}
		sb.WriteString(";ROLE=NON-PARTICIPANT:mailto:" + r.AdminEmail)
		lines = append(lines, sb.String())
	}
	return lines
}

func organizerLine(organizer string) string {
	if strings.Contains(strings.ToLower(organizer), "mailto:") {
		return "ORGANIZER:" + organizer
	}
	return "ORGANIZER:mailto:" + organizer
}

// propertyName extracts the upper-cased property name of an unfolded content
// line.
func propertyName(line string) string {
	end := len(line)
	if idx := strings.IndexAny(line, ";:"); idx >= 0 {
		end = idx
	}
	return strings.ToUpper(strings.TrimSpace(line[:end]))
}

// escapeText escapes TEXT values per RFC5545 3.3.11.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ";", "\\;")
	text = strings.ReplaceAll(text, ",", "\\,")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return text
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// formatDateProperty renders DTSTART/DTEND; all-day events use VALUE=DATE
// with no time part.
func formatDateProperty(name string, t time.Time, allDay bool) string {
	if allDay {
		return name + ";VALUE=DATE:" + t.UTC().Format("20060102")
	}
	return name + ":" + formatUTC(t)
}

// foldAndJoin emits CRLF-terminated output, folding content lines longer
// than 75 octets with a single-space continuation.
func foldAndJoin(lines []string) string {
	var sb strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		writeFolded(&sb, line)
	}
	return sb.String()
}

func writeFolded(sb *strings.Builder, line string) {
	if len(line) <= 75 {
		sb.WriteString(line)
		sb.WriteString("\r\n")
		return
	}
	sb.WriteString(line[:75])
	line = line[75:]
	for len(line) > 74 {
		sb.WriteString("\r\n ")
		sb.WriteString(line[:74])
		line = line[74:]
	}
	if len(line) > 0 {
		sb.WriteString("\r\n ")
		sb.WriteString(line)
	}
	sb.WriteString("\r\n")
}
