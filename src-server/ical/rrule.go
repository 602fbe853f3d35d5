package ical

import (
	"regexp"
	"strings"
)

// rruleParamWhitelist is the set of RRULE parameters that survive
// sanitization. Every name outside it has shown up as corruption debris at
// least once.
var rruleParamWhitelist = map[string]struct{}{
	"FREQ":       {},
	"INTERVAL":   {},
	"COUNT":      {},
	"UNTIL":      {},
	"BYDAY":      {},
	"BYMONTHDAY": {},
	"BYMONTH":    {},
	"WKST":       {},
	"BYSETPOS":   {},
}

var (
	freqTokenPattern       = regexp.MustCompile(`FREQ=(SECONDLY|MINUTELY|HOURLY|DAILY|WEEKLY|MONTHLY|YEARLY)`)
	rruleEmailDebrisRegexp = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+`)
	rruleParamValueRegexp  = regexp.MustCompile(`^[A-Za-z0-9,+-]+$`)
)

// SanitizeRRule repairs a recurrence rule value coming out of a corrupted
// feed. It strips an optional RRULE: prefix, truncates at the first colon
// (nothing legal in an RRULE value contains one; mailto: debris does),
// whitelist-filters the remaining ;-separated parameters and validates
// their values. An email glued straight onto the value means the rest of
// the line is attendee debris, so only the FREQ token is recovered. When no
// FREQ parameter survives but a FREQ token was present at all, the rule
// degrades to FREQ=DAILY; otherwise the result is empty.
//
// Idempotent: sanitizing an already-clean rule returns it unchanged.
func SanitizeRRule(raw string) string {
	rule := strings.TrimSpace(raw)
	rule = strings.TrimPrefix(rule, "RRULE:")
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return ""
	}

	if idx := strings.Index(rule, ":"); idx >= 0 {
		rule = rule[:idx]
	}

	if rruleEmailDebrisRegexp.MatchString(rule) {
		if m := freqTokenPattern.FindStringSubmatch(rule); m != nil {
			return "FREQ=" + m[1]
		}
		if strings.Contains(strings.ToUpper(rule), "FREQ") {
			return "FREQ=DAILY"
		}
		return ""
	}

	parts := strings.Split(rule, ";")
	kept := make([]string, 0, len(parts))
	freqSeen := false
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		if _, ok := rruleParamWhitelist[key]; !ok {
			continue
		}
		if value == "" || !rruleParamValueRegexp.MatchString(value) {
			continue
		}
		if key == "FREQ" {
			if !isKnownFreq(value) {
				continue
			}
			freqSeen = true
		}
		kept = append(kept, key+"="+value)
	}
	if !freqSeen {
		if strings.Contains(strings.ToUpper(rule), "FREQ") {
			return "FREQ=DAILY"
		}
		return ""
	}
	return strings.Join(kept, ";")
}

func isKnownFreq(value string) bool {
	switch strings.ToUpper(value) {
	case "SECONDLY", "MINUTELY", "HOURLY", "DAILY", "WEEKLY", "MONTHLY", "YEARLY":
		return true
	}
	return false
}
