package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.UTC)
}

func TestExpandNone(t *testing.T) {
	start := date(2026, time.March, 3, 15, 0)
	got := Expand(start, RuleNone, nil)
	require.Equal(t, []time.Time{start}, got)
}

func TestExpandWeeklyUntil(t *testing.T) {
	start := date(2026, time.March, 3, 15, 0)
	until := date(2026, time.March, 31, 23, 59)

	got := Expand(start, RuleWeekly, &until)
	require.Len(t, got, 5)
	assert.Equal(t, start, got[0])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, 7*24*time.Hour, got[i].Sub(got[i-1]))
	}
}

func TestExpandBiweekly(t *testing.T) {
	start := date(2026, time.January, 5, 9, 30)
	until := date(2026, time.February, 2, 9, 30)

	got := Expand(start, RuleBiweekly, &until)
	require.Equal(t, []time.Time{
		start,
		date(2026, time.January, 19, 9, 30),
		date(2026, time.February, 2, 9, 30),
	}, got)
}

func TestExpandMonthlyClampsShortMonths(t *testing.T) {
	start := date(2026, time.January, 31, 10, 0)
	until := date(2026, time.May, 31, 10, 0)

	got := Expand(start, RuleMonthly, &until)
	require.Equal(t, []time.Time{
		date(2026, time.January, 31, 10, 0),
		date(2026, time.February, 28, 10, 0),
		date(2026, time.March, 31, 10, 0),
		date(2026, time.April, 30, 10, 0),
		date(2026, time.May, 31, 10, 0),
	}, got)
}

func TestExpandMonthlyLeapYear(t *testing.T) {
	start := date(2028, time.January, 30, 8, 0)
	until := date(2028, time.March, 30, 8, 0)

	got := Expand(start, RuleMonthly, &until)
	require.Equal(t, []time.Time{
		date(2028, time.January, 30, 8, 0),
		date(2028, time.February, 29, 8, 0),
		date(2028, time.March, 30, 8, 0),
	}, got)
}

func TestExpandDefaultsToOneYearHorizon(t *testing.T) {
	start := date(2026, time.June, 1, 12, 0)
	got := Expand(start, RuleWeekly, nil)
	require.Len(t, got, 53)
	assert.Equal(t, start, got[0])
	assert.False(t, got[len(got)-1].After(start.Add(DefaultHorizon)))
}

func TestExpandStrictlyIncreasing(t *testing.T) {
	start := date(2026, time.January, 31, 10, 0)
	got := Expand(start, RuleMonthly, nil)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]), "index %d not increasing", i)
	}
}

func TestExpandUntilBeforeStartStillYieldsFirstInstance(t *testing.T) {
	start := date(2026, time.June, 1, 12, 0)
	until := date(2026, time.May, 1, 0, 0)
	got := Expand(start, RuleWeekly, &until)
	require.Equal(t, []time.Time{start}, got)
}

func TestParseRule(t *testing.T) {
	for _, valid := range []string{"", "none", "weekly", "biweekly", "monthly"} {
		_, ok := ParseRule(valid)
		assert.True(t, ok, valid)
	}
	_, ok := ParseRule("daily")
	assert.False(t, ok)
}
