package ical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRRule(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "FREQ=WEEKLY;BYDAY=MO,TU", "FREQ=WEEKLY;BYDAY=MO,TU"},
		{"rrule prefix stripped", "RRULE:FREQ=DAILY", "FREQ=DAILY"},
		{"mailto debris after colon", "FREQ=DAILY:mailto:foo@bar.com", "FREQ=DAILY"},
		{"unknown params dropped", "FREQ=MONTHLY;X-JUNK=1;BYMONTHDAY=15", "FREQ=MONTHLY;BYMONTHDAY=15"},
		{"schedule status dropped", "FREQ=WEEKLY;SCHEDULE-STATUS=2.0;BYDAY=FR", "FREQ=WEEKLY;BYDAY=FR"},
		{"full whitelist survives", "FREQ=YEARLY;INTERVAL=2;COUNT=10;UNTIL=20301231T000000Z;BYDAY=1MO;BYMONTHDAY=15;BYMONTH=6;WKST=MO;BYSETPOS=-1", "FREQ=YEARLY;INTERVAL=2;COUNT=10;UNTIL=20301231T000000Z;BYDAY=1MO;BYMONTHDAY=15;BYMONTH=6;WKST=MO;BYSETPOS=-1"},
		{"glued email and resource", "FREQ=WEEKLY;BYDAY=MOuser@domain.comProjector", "FREQ=WEEKLY"},
		{"glued email on freq value", "FREQ=DAILYuser@x.comRoom", "FREQ=DAILY"},
		{"email junk without recoverable freq", "BYDAY=MOuser@domain.com", ""},
		{"bogus freq falls back to daily", "FREQ=BOGUS;COUNT=5", "FREQ=DAILY"},
		{"broken freq assignment falls back", "FREQ==;BYDAY", "FREQ=DAILY"},
		{"no freq at all", "BYDAY=MO;COUNT=5", ""},
		{"garbage", "complete garbage", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeRRule(tt.in))
		})
	}
}

func TestSanitizeRRuleIdempotent(t *testing.T) {
	inputs := []string{
		"FREQ=WEEKLY;BYDAY=MO,TU",
		"RRULE:FREQ=DAILY",
		"FREQ=DAILY:mailto:foo@bar.com",
		"FREQ=MONTHLY;X-JUNK=1;BYMONTHDAY=15",
		"FREQ=WEEKLY;BYDAY=MOuser@domain.comProjector",
		"FREQ=BOGUS;COUNT=5",
		"BYDAY=MO;COUNT=5",
		"complete garbage",
		"",
	}
	for _, in := range inputs {
		once := SanitizeRRule(in)
		assert.Equal(t, once, SanitizeRRule(once), "sanitizer not idempotent for %q", in)
	}
}
