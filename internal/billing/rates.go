// Package billing holds the rate-resolution rules for pricing a lesson.
// Everything here is pure: resolution never touches storage and never fails,
// it degrades to documented defaults so a billing screen can always render.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

// Hard fallbacks used when a tutor has no usable rate configuration at all:
// $45 per 60 minutes.
const (
	DefaultRate            = 45.0
	DefaultBaseDurationMin = 60
)

type ResolveInput struct {
	Subject         string
	DurationMinutes int
	Combined        bool
	OverrideAmount  *float64
	Settings        *models.TutorRateSettings
}

type Resolution struct {
	Amount decimal.Decimal
	// RateDisplay is the human-readable rate the amount was derived from,
	// e.g. "$35.00 / 30 min".
	RateDisplay string
	// Formula describes how Amount was computed, for invoice line display.
	Formula string
}

// Resolve prices a single lesson. Order of precedence: manual override, an
// exact duration price from the subject's table, then the pro-rata formula
// duration / base * rate rounded half-up to cents.
func Resolve(in ResolveInput) Resolution {
	if in.OverrideAmount != nil {
		amount := decimal.NewFromFloat(*in.OverrideAmount).Round(2)
		return Resolution{
			Amount:      amount,
			RateDisplay: "manual",
			Formula:     fmt.Sprintf("manual override: $%s", amount.StringFixed(2)),
		}
	}

	rate, baseMin, table := effectiveRate(in.Subject, in.Settings)
	display := fmt.Sprintf("$%s / %d min", rate.StringFixed(2), baseMin)

	if price, ok := table[in.DurationMinutes]; ok && price > 0 {
		amount := decimal.NewFromFloat(price).Round(2)
		return Resolution{
			Amount:      amount,
			RateDisplay: display,
			Formula:     fmt.Sprintf("fixed price for %d min: $%s%s", in.DurationMinutes, amount.StringFixed(2), combinedNote(in.Combined)),
		}
	}

	amount := rate.
		Mul(decimal.NewFromInt(int64(in.DurationMinutes))).
		Div(decimal.NewFromInt(int64(baseMin))).
		Round(2)
	return Resolution{
		Amount:      amount,
		RateDisplay: display,
		Formula: fmt.Sprintf("%d min x $%s / %d min = $%s%s",
			in.DurationMinutes, rate.StringFixed(2), baseMin, amount.StringFixed(2), combinedNote(in.Combined)),
	}
}

// BaseDuration reports the configured base duration for a subject, falling
// back the same way Resolve does. The scheduling planner uses it to size
// multi-subject combined bookings.
func BaseDuration(subject string, settings *models.TutorRateSettings) int {
	_, baseMin, _ := effectiveRate(subject, settings)
	return baseMin
}

// effectiveRate is the single defaulting point for rate configuration. A
// subject entry with a non-positive rate or base duration is treated as
// absent, and absent tutor defaults fall back to the hard constants.
func effectiveRate(subject string, settings *models.TutorRateSettings) (decimal.Decimal, int, map[int]float64) {
	defaultRate := DefaultRate
	defaultBase := DefaultBaseDurationMin
	if settings != nil {
		if settings.DefaultRate > 0 {
			defaultRate = settings.DefaultRate
		}
		if settings.DefaultBaseMin > 0 {
			defaultBase = settings.DefaultBaseMin
		}
		if sub, ok := settings.SubjectRates[subject]; ok && sub.Rate > 0 && sub.BaseDurationMin > 0 {
			return decimal.NewFromFloat(sub.Rate), sub.BaseDurationMin, sub.DurationPrices
		}
	}
	return decimal.NewFromFloat(defaultRate), defaultBase, nil
}

func combinedNote(combined bool) string {
	if combined {
		return " (combined session)"
	}
	return ""
}
