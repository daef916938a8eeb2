package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a half-open [StartMin, EndMin) range of minutes since midnight
// in the business timezone.
type Interval struct {
	StartMin int
	EndMin   int
}

func (i Interval) Overlaps(startMin, durationMin int) bool {
	return startMin < i.EndMin && startMin+durationMin > i.StartMin
}

// IsBusy reports whether a candidate slot overlaps any busy interval.
// Touching boundaries do not conflict: a lesson ending 14:30 leaves a
// 14:30 start free.
func IsBusy(startMin, durationMin int, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(startMin, durationMin) {
			return true
		}
	}
	return false
}

type Slot struct {
	StartMin int  `json:"start_min"`
	Busy     bool `json:"busy"`
}

func (s Slot) Clock() string {
	return FormatClock(s.StartMin)
}

// ListFreeStarts enumerates every stepMin-aligned start inside the window
// that fits requiredMin before the window ends, tagging each with its
// conflict status. Busy slots are kept, not dropped; the caller decides how
// to render them.
func ListFreeStarts(window Interval, stepMin, requiredMin int, busy []Interval) []Slot {
	if stepMin <= 0 {
		stepMin = 30
	}
	slots := make([]Slot, 0)
	for start := window.StartMin; start+requiredMin <= window.EndMin; start += stepMin {
		slots = append(slots, Slot{
			StartMin: start,
			Busy:     IsBusy(start, requiredMin, busy),
		})
	}
	return slots
}

// NormalizeClock converts a timestamp to minutes since midnight in loc.
// Every timestamp-shaped input must pass through here before interval
// comparison; comparing wall-clock strings from different sources directly
// is how double bookings happen.
func NormalizeClock(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// ParseClock parses "HH:MM" into minutes since midnight. Callers must treat
// an error as "busy", never as "free".
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return hour*60 + minute, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
