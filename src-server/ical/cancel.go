package ical

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	uidLinePattern          = regexp.MustCompile(`(?m)^UID[^:\r\n]*:(.+)$`)
	summaryLinePattern      = regexp.MustCompile(`(?m)^SUMMARY[^:\r\n]*:(.+)$`)
	dtstartLinePattern      = regexp.MustCompile(`(?m)^(DTSTART[^:\r\n]*:.+)$`)
	dtendLinePattern        = regexp.MustCompile(`(?m)^(DTEND[^:\r\n]*:.+)$`)
	organizerLinePattern    = regexp.MustCompile(`(?m)^(ORGANIZER[^:\r\n]*:.+)$`)
	fullAttendeeLinePattern = regexp.MustCompile(`(?m)^(ATTENDEE[^:\r\n]*:.+)$`)
)

// TransformICSForCancellation builds the RFC5546 METHOD:CANCEL message for a
// previously delivered invitation. Receiving clients correlate the
// cancellation with the original by UID, so the UID is extracted verbatim
// from the original payload and never regenerated; SEQUENCE is the
// original's incremented by one. DTSTART, DTEND, ORGANIZER and the ATTENDEE
// block are carried over as whole lines where the original still has them,
// and rebuilt from the record otherwise.
func TransformICSForCancellation(originalICS string, rec *EventRecord) (string, error) {
	if strings.TrimSpace(originalICS) == "" && rec == nil {
		return "", fmt.Errorf("TransformICSForCancellation: nothing to cancel")
	}

	cleaned, _ := applyPasses(originalICS, cancellationCleanPasses)

	uid := firstSubmatch(uidLinePattern, cleaned)
	if uid == "" && rec != nil {
		uid = rec.UID
	}
	if uid == "" {
		return "", fmt.Errorf("TransformICSForCancellation: no UID recoverable")
	}

	summary := firstSubmatch(summaryLinePattern, cleaned)
	if summary == "" && rec != nil {
		summary = escapeText(rec.Summary)
	}

	now := time.Now().UTC()
	lines := []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + ProdID,
		"VERSION:2.0",
		"CALSCALE:GREGORIAN",
		"METHOD:CANCEL",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + formatUTC(now),
	}

	if line := firstSubmatch(dtstartLinePattern, cleaned); line != "" {
		lines = append(lines, line)
	} else if rec != nil {
		lines = append(lines, formatDateProperty("DTSTART", rec.StartDate, rec.AllDay))
	}
	if line := firstSubmatch(dtendLinePattern, cleaned); line != "" {
		lines = append(lines, line)
	} else if rec != nil {
		lines = append(lines, formatDateProperty("DTEND", rec.EndDate, rec.AllDay))
	}
	if summary != "" {
		lines = append(lines, "SUMMARY:"+summary)
	}
	if line := firstSubmatch(organizerLinePattern, cleaned); line != "" {
		lines = append(lines, line)
	} else if rec != nil && rec.Organizer != "" {
		lines = append(lines, organizerLine(rec.Organizer))
	}

	attendees := allSubmatches(fullAttendeeLinePattern, cleaned)
	if len(attendees) == 0 && rec != nil {
		attendees = attendeeLines(rec)
	}
	lines = append(lines, attendees...)

	lines = append(lines,
		fmt.Sprintf("SEQUENCE:%d", EmbeddedSequence(cleaned)+1),
		"STATUS:CANCELLED",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	return foldAndJoin(lines), nil
}

func firstSubmatch(pattern *regexp.Regexp, text string) string {
	if m := pattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func allSubmatches(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
