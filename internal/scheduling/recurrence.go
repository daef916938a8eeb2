// Package scheduling holds the pure calendar logic: recurrence expansion,
// combined-booking duration planning, and time-slot conflict detection.
package scheduling

import "time"

type Rule string

const (
	RuleNone     Rule = "none"
	RuleWeekly   Rule = "weekly"
	RuleBiweekly Rule = "biweekly"
	RuleMonthly  Rule = "monthly"
)

func ParseRule(s string) (Rule, bool) {
	switch Rule(s) {
	case RuleNone, RuleWeekly, RuleBiweekly, RuleMonthly:
		return Rule(s), true
	case "":
		return RuleNone, true
	default:
		return RuleNone, false
	}
}

// DefaultHorizon bounds an open-ended recurrence to one year of instances.
const DefaultHorizon = 365 * 24 * time.Hour

// maxInstances caps expansion so malformed input can never loop away.
const maxInstances = 1000

// Expand materializes a recurrence rule into concrete lesson start times.
// The result always begins with start, is strictly increasing, and stops at
// until (inclusive) or one year out when until is nil. Monthly steps keep the
// start's day-of-month, clamping to the last day of shorter months instead of
// overflowing into the next one.
func Expand(start time.Time, rule Rule, until *time.Time) []time.Time {
	if rule == RuleNone {
		return []time.Time{start}
	}

	end := start.Add(DefaultHorizon)
	if until != nil {
		end = *until
	}

	out := make([]time.Time, 0, 8)
	for i := 0; i < maxInstances; i++ {
		var next time.Time
		switch rule {
		case RuleWeekly:
			next = start.AddDate(0, 0, 7*i)
		case RuleBiweekly:
			next = start.AddDate(0, 0, 14*i)
		case RuleMonthly:
			next = addMonthsClamped(start, i)
		default:
			return []time.Time{start}
		}
		if next.After(end) {
			break
		}
		out = append(out, next)
	}
	if len(out) == 0 {
		// until precedes start; the first instance still materializes.
		out = append(out, start)
	}
	return out
}

// addMonthsClamped adds months preserving day-of-month where possible.
// time.AddDate normalizes Jan 31 + 1 month to Mar 2/3; here it becomes the
// last day of February instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
