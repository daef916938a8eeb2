package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LessonStatusScheduled = "scheduled"
	LessonStatusCompleted = "completed"
	LessonStatusCancelled = "cancelled"
)

// Subjects currently offered. The column is plain text so new subjects only
// need to be added here and in the tutor's rate settings.
var KnownSubjects = []string{"piano", "math", "reading", "speech", "english"}

type Lesson struct {
	ID              int64      `json:"id"`
	StudentID       int64      `json:"student_id"`
	TutorID         int64      `json:"tutor_id"`
	Subject         string     `json:"subject"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_min"`
	Status          string     `json:"status"`
	SessionID       *uuid.UUID `json:"session_id,omitempty"`
	RecurrenceID    *uuid.UUID `json:"recurrence_id,omitempty"`
	OverrideAmount  *float64   `json:"override_amount,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (l *Lesson) End() time.Time {
	return l.ScheduledAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// LessonDetail pairs a lesson with its invoice link, when one exists.
type LessonDetail struct {
	Lesson
	Billed       bool     `json:"billed"`
	BilledAmount *float64 `json:"billed_amount,omitempty"`
}
