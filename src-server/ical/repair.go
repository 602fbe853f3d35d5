package ical

import (
	"log/slog"
	"regexp"
	"strings"
)

// A repairPass is one named, pure text-to-text cleanup step. Passes run in
// order and every pass must be safe on already-clean input.
type repairPass struct {
	name  string
	apply func(string) string
}

// precleanPasses run on every payload before the standards parse. They fix
// the corruption signatures that show up constantly in busted feeds.
var precleanPasses = []repairPass{
	{"normalize-line-endings", normalizeLineEndings},
	{"strip-schedule-status-in-rrule", stripScheduleStatusInRRule},
	{"rejoin-broken-continuation-lines", rejoinBrokenContinuationLines},
}

// aggressivePasses run only after the standards parser rejected the payload.
var aggressivePasses = []repairPass{
	{"extract-attendees-glued-to-rrule", extractAttendeesGluedToRRule},
	{"truncate-rrule-to-known-params", truncateRRuleToKnownParams},
	{"drop-bare-mailto-lines", dropBareMailtoLines},
	{"drop-valueless-lines", dropValuelessLines},
}

// cancellationCleanPasses deep-clean a stored payload before regex
// extraction. The stored text may predate the repair pipeline and carry
// every corruption at once.
var cancellationCleanPasses = []repairPass{
	{"normalize-line-endings", normalizeLineEndings},
	{"fix-double-mailto-colons", fixDoubleMailtoColons},
	{"refold-corrupted-continuations", refoldCorruptedContinuations},
	{"collapse-blank-lines", collapseBlankLines},
}

func applyPasses(text string, passes []repairPass) (string, bool) {
	changed := false
	for _, pass := range passes {
		out := pass.apply(text)
		if out != text {
			slog.Debug("ical: repair pass rewrote payload", "pass", pass.name)
			changed = true
			text = out
		}
	}
	return text, changed
}

var (
	scheduleStatusInRRulePattern = regexp.MustCompile(`(?m)^(RRULE[^\r\n]*?);?SCHEDULE-STATUS=[^;:\r\n]*`)
	propertyStartPattern         = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*[;:]`)
)

// gluedResourceWords are the resource names observed concatenated directly
// onto email addresses in corrupted RRULE lines.
var gluedResourceWords = []string{"Projector", "Room", "Chair"}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// stripScheduleStatusInRRule removes SCHEDULE-STATUS fragments that some
// servers leak into RRULE lines, both as bogus parameters and glued into the
// value.
func stripScheduleStatusInRRule(text string) string {
	for {
		out := scheduleStatusInRRulePattern.ReplaceAllString(text, "$1")
		if out == text {
			return out
		}
		text = out
	}
}

// rejoinBrokenContinuationLines merges physical lines that continue an
// ATTENDEE or ORGANIZER property but lack the folding whitespace RFC5545
// requires. A leading "mailto:" never starts a new property.
func rejoinBrokenContinuationLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(out) > 0 && line != "" &&
			!strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") &&
			!looksLikeProperty(line) &&
			isSchedulingProperty(out[len(out)-1]) {
			out[len(out)-1] += line
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func looksLikeProperty(line string) bool {
	if strings.HasPrefix(strings.ToLower(line), "mailto:") {
		return false
	}
	return propertyStartPattern.MatchString(line)
}

func isSchedulingProperty(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "ATTENDEE") || strings.HasPrefix(upper, "ORGANIZER")
}

// extractAttendeesGluedToRRule re-emits attendee and resource fragments that
// were concatenated onto an RRULE line as standalone ATTENDEE lines. The
// RRULE line itself is left for truncateRRuleToKnownParams. A known resource
// word stuck to the end of the email (the greedy match swallows it into the
// TLD) marks the fragment as a resource.
func extractAttendeesGluedToRRule(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line)
		if !strings.HasPrefix(strings.ToUpper(line), "RRULE") {
			continue
		}
		for _, m := range emailPattern.FindAllString(line, -1) {
			email, kind := m, ""
			for _, kw := range gluedResourceWords {
				if strings.HasSuffix(email, kw) && len(email) > len(kw) {
					email = strings.TrimSuffix(email, kw)
					kind = kw
					break
				}
			}
			if kind != "" {
				out = append(out, "ATTENDEE;CUTYPE=RESOURCE;CN="+kind+";ROLE=NON-PARTICIPANT:mailto:"+email)
				continue
			}
			out = append(out, "ATTENDEE:mailto:"+email)
		}
	}
	return strings.Join(out, "\n")
}

// truncateRRuleToKnownParams rewrites every RRULE line down to the sanitized
// rule and drops the line entirely when nothing survives.
func truncateRRuleToKnownParams(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.ToUpper(line), "RRULE") {
			idx := strings.Index(line, ":")
			if idx < 0 {
				continue
			}
			if value := SanitizeRRule(line[idx+1:]); value != "" {
				out = append(out, "RRULE:"+value)
			}
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// dropBareMailtoLines removes dangling mailto: fragments sitting on their own
// physical line. Folded continuations keep their leading whitespace and are
// not touched.
func dropBareMailtoLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(line), "mailto:") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// dropValuelessLines removes debris that cannot be a content line at all: no
// colon anywhere and no folding whitespace. These are what actually make a
// standards parser give up.
func dropValuelessLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			out = append(out, line)
			continue
		}
		if !strings.Contains(line, ":") {
			if line == "" && i == len(lines)-1 {
				out = append(out, line)
			}
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func fixDoubleMailtoColons(text string) string {
	return strings.ReplaceAll(text, "mailto::", "mailto:")
}

// refoldCorruptedContinuations unfolds both legitimate folding and bare
// continuation lines so that regex extraction sees whole logical lines.
func refoldCorruptedContinuations(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(out) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			out[len(out)-1] += strings.TrimLeft(line, " \t")
			continue
		}
		if len(out) > 0 && line != "" && !looksLikeProperty(line) {
			out[len(out)-1] += line
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func collapseBlankLines(text string) string {
	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}
	return text
}

// unfoldLines resolves RFC5545 folding so single-line regexes can see whole
// property values.
func unfoldLines(text string) string {
	text = normalizeLineEndings(text)
	text = strings.ReplaceAll(text, "\n ", "")
	return strings.ReplaceAll(text, "\n\t", "")
}
