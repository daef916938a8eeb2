package models

import "time"

// SubjectRate is one entry of the tutor's per-subject rate table.
// DurationPrices maps an exact lesson length in minutes to a fixed price,
// overriding the pro-rata formula for that length.
type SubjectRate struct {
	Rate            float64         `json:"rate"`
	BaseDurationMin int             `json:"base_min"`
	DurationPrices  map[int]float64 `json:"duration_prices,omitempty"`
}

// TutorRateSettings is the single rate-configuration record per tutor.
// CombinedSessionRate is the legacy flat group-lesson price; it is still
// parsed from stored settings but no longer used in amount calculations.
type TutorRateSettings struct {
	TutorID             int64                  `json:"tutor_id"`
	DefaultRate         float64                `json:"default_rate"`
	DefaultBaseMin      int                    `json:"default_base_min"`
	SubjectRates        map[string]SubjectRate `json:"subject_rates,omitempty"`
	CombinedSessionRate *float64               `json:"combined_session_rate,omitempty"`
	UpdatedAt           time.Time              `json:"updated_at"`
}
