package repository

import (
	"context"
	"time"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

type AvailabilityRepository struct {
	db DBTX
}

func NewAvailabilityRepository(db DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) ListByWeekday(ctx context.Context, tutorID int64, weekday time.Weekday) ([]models.TutorAvailability, error) {
	query := `
		SELECT id, tutor_id, weekday, start_min, end_min
		FROM tutor_availability
		WHERE tutor_id = $1 AND weekday = $2
		ORDER BY start_min ASC
	`
	rows, err := r.db.Query(ctx, query, tutorID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := make([]models.TutorAvailability, 0)
	for rows.Next() {
		var w models.TutorAvailability
		if err := rows.Scan(&w.ID, &w.TutorID, &w.Weekday, &w.StartMinutes, &w.EndMinutes); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *AvailabilityRepository) ListBreaksForDate(ctx context.Context, tutorID int64, date time.Time) ([]models.TutorBreak, error) {
	query := `
		SELECT id, tutor_id, on_date, start_min, end_min, reason
		FROM tutor_breaks
		WHERE tutor_id = $1 AND on_date = $2::date
		ORDER BY start_min ASC
	`
	rows, err := r.db.Query(ctx, query, tutorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breaks := make([]models.TutorBreak, 0)
	for rows.Next() {
		var b models.TutorBreak
		if err := rows.Scan(&b.ID, &b.TutorID, &b.OnDate, &b.StartMinutes, &b.EndMinutes, &b.Reason); err != nil {
			return nil, err
		}
		breaks = append(breaks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return breaks, nil
}
