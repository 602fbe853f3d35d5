package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/xyedo/rrule"
)

// Occurrence is one materialized instant of a recurring event, rebuilt on
// every event upsert. Range queries hit this table instead of re-expanding
// rules.
type Occurrence struct {
	bun.BaseModel `bun:"table:occurrences"`

	EventUID string `bun:"event_uid,notnull"` // required
	Date     int64  `bun:"date,notnull"`      // required
}

const (
	// how far past the event start recurrences are materialized
	occurrenceHorizonMonths = 36
	// hard cap on rows per event, whatever the rule claims
	maxOccurrences = 10000

	icalTimeLayout = "20060102T150405Z"
)

// ExpandRecurrence materializes the instants of a sanitized recurrence rule,
// capped to the horizon. Returns nil for a blank rule.
func ExpandRecurrence(startUnix int64, rule string) ([]int64, error) {
	if rule == "" {
		return nil, nil
	}

	start := time.Unix(startUnix, 0).UTC()
	horizon := start.AddDate(0, occurrenceHorizonMonths, 0)

	set, err := rrule.StrToRRuleSet(
		"DTSTART:" + start.Format(icalTimeLayout) +
			"\nRRULE:" + boundRecurrence(rule, horizon))
	if err != nil {
		return nil, fmt.Errorf("ExpandRecurrence: invalid rrule %q: %w", rule, err)
	}

	seen := make(map[int64]struct{})
	dates := make([]int64, 0)
	for _, date := range set.All() {
		unix := date.Unix()
		if unix > horizon.Unix() {
			break
		}
		if _, ok := seen[unix]; ok {
			continue
		}
		seen[unix] = struct{}{}
		dates = append(dates, unix)
		if len(dates) >= maxOccurrences {
			break
		}
	}
	return dates, nil
}

// boundRecurrence rewrites the rule's stop condition so expansion always
// terminates within the horizon: an oversized or unparseable COUNT is
// dropped, an UNTIL past the horizon is pulled back, and a rule with no stop
// condition at all gets UNTIL=horizon.
func boundRecurrence(rule string, horizon time.Time) string {
	until := horizon.UTC().Format(icalTimeLayout)

	params := strings.Split(rule, ";")
	kept := params[:0]
	bounded := false
	for _, param := range params {
		key, value, found := strings.Cut(param, "=")
		if !found {
			kept = append(kept, param)
			continue
		}
		switch strings.ToUpper(key) {
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 || n > maxOccurrences {
				continue
			}
			kept = append(kept, param)
			bounded = true
		case "UNTIL":
			// both sides are yyyymmdd-prefixed, so the string compare
			// orders like the instants do
			if value > until {
				kept = append(kept, "UNTIL="+until)
			} else {
				kept = append(kept, param)
			}
			bounded = true
		default:
			kept = append(kept, param)
		}
	}
	if !bounded {
		kept = append(kept, "UNTIL="+until)
	}
	return strings.Join(kept, ";")
}
