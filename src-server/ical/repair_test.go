package ical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc\n", normalizeLineEndings("a\r\nb\rc\r\n"))
}

func TestStripScheduleStatusInRRule(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"leaked into value",
			"RRULE:FREQ=WEEKLY;BYDAY=MO;SCHEDULE-STATUS=2.0\nSUMMARY:x",
			"RRULE:FREQ=WEEKLY;BYDAY=MO\nSUMMARY:x",
		},
		{
			"leaked as parameter",
			"RRULE;SCHEDULE-STATUS=2.0:FREQ=DAILY",
			"RRULE:FREQ=DAILY",
		},
		{
			"twice on one line",
			"RRULE:FREQ=DAILY;SCHEDULE-STATUS=2.0;SCHEDULE-STATUS=3.7",
			"RRULE:FREQ=DAILY",
		},
		{
			"other lines untouched",
			"ATTENDEE;SCHEDULE-STATUS=2.0:mailto:a@b.com",
			"ATTENDEE;SCHEDULE-STATUS=2.0:mailto:a@b.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripScheduleStatusInRRule(tt.in))
		})
	}
}

func TestRejoinBrokenContinuationLines(t *testing.T) {
	in := "ATTENDEE;CN=Bob:mailto:b\nob@example.com\nSUMMARY:keep\nmailto:dangling@x.com"
	want := "ATTENDEE;CN=Bob:mailto:bob@example.com\nSUMMARY:keep\nmailto:dangling@x.com"
	assert.Equal(t, want, rejoinBrokenContinuationLines(in))

	// legitimate folding is left alone
	folded := "ATTENDEE;CN=Bob:mailto:b\n ob@example.com"
	assert.Equal(t, folded, rejoinBrokenContinuationLines(folded))
}

func TestExtractAttendeesGluedToRRule(t *testing.T) {
	in := "RRULE:FREQ=WEEKLY;BYDAY=MO;user@domain.comProjector\nSUMMARY:x"
	got := extractAttendeesGluedToRRule(in)
	assert.Contains(t, got, "ATTENDEE;CUTYPE=RESOURCE;CN=Projector;ROLE=NON-PARTICIPANT:mailto:user@domain.com")
	assert.Contains(t, got, "SUMMARY:x")

	in = "RRULE:FREQ=DAILY;plain@x.com\nSUMMARY:x"
	got = extractAttendeesGluedToRRule(in)
	assert.Contains(t, got, "ATTENDEE:mailto:plain@x.com")
}

func TestTruncateRRuleToKnownParams(t *testing.T) {
	in := "RRULE:FREQ=WEEKLY;BYDAY=MO;X-BAD=1\nRRULE:nothing useful\nSUMMARY:x"
	want := "RRULE:FREQ=WEEKLY;BYDAY=MO\nSUMMARY:x"
	assert.Equal(t, want, truncateRRuleToKnownParams(in))
}

func TestDropBareMailtoLines(t *testing.T) {
	in := "SUMMARY:x\nmailto:stranded@x.com\nATTENDEE:mailto:keep@x.com\n mailto:folded-keep@x.com"
	want := "SUMMARY:x\nATTENDEE:mailto:keep@x.com\n mailto:folded-keep@x.com"
	assert.Equal(t, want, dropBareMailtoLines(in))
}

func TestDropValuelessLines(t *testing.T) {
	in := "SUMMARY:x\nuser@domain.comProjector\nDTSTART:20260101T000000Z\n"
	want := "SUMMARY:x\nDTSTART:20260101T000000Z\n"
	assert.Equal(t, want, dropValuelessLines(in))
}

func TestFixDoubleMailtoColons(t *testing.T) {
	assert.Equal(t,
		"ATTENDEE:mailto:a@b.com",
		fixDoubleMailtoColons("ATTENDEE:mailto::a@b.com"))
}

func TestRefoldCorruptedContinuations(t *testing.T) {
	in := "DTSTART:2026010\n2T130000Z\nATTENDEE:mailto:a\n @b.com"
	want := "DTSTART:20260102T130000Z\nATTENDEE:mailto:a@b.com"
	assert.Equal(t, want, refoldCorruptedContinuations(in))
}

func TestCollapseBlankLines(t *testing.T) {
	assert.Equal(t, "a\nb\n", collapseBlankLines("a\n\n\nb\n\n"))
}

func TestApplyPassesReportsChange(t *testing.T) {
	out, changed := applyPasses("SUMMARY:x\r\n", precleanPasses)
	assert.True(t, changed)
	assert.Equal(t, "SUMMARY:x\n", out)

	out, changed = applyPasses("SUMMARY:x\n", precleanPasses)
	assert.False(t, changed)
	assert.Equal(t, "SUMMARY:x\n", out)
}
