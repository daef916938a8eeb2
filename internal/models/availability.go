package models

import "time"

// TutorAvailability is a weekly recurring bookable window. Weekday follows
// time.Weekday (0 = Sunday). Times are minutes since midnight in the business
// timezone. Availability only drives which candidate times are offered; it
// never blocks a booking placed outside it.
type TutorAvailability struct {
	ID           int64 `json:"id"`
	TutorID      int64 `json:"tutor_id"`
	Weekday      int   `json:"weekday"`
	StartMinutes int   `json:"start_min"`
	EndMinutes   int   `json:"end_min"`
}

// TutorBreak blocks part of a single date, e.g. an appointment.
type TutorBreak struct {
	ID           int64     `json:"id"`
	TutorID      int64     `json:"tutor_id"`
	OnDate       time.Time `json:"on_date"`
	StartMinutes int       `json:"start_min"`
	EndMinutes   int       `json:"end_min"`
	Reason       *string   `json:"reason,omitempty"`
}
