package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so services can rebuild
// repositories over an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const lessonColumns = `id, student_id, tutor_id, subject, scheduled_at, duration_min, status, session_id, recurrence_id, override_amount, notes, created_at, updated_at`

type CreateLessonInput struct {
	StudentID       int64
	TutorID         int64
	Subject         string
	ScheduledAt     time.Time
	DurationMinutes int
	SessionID       *uuid.UUID
	RecurrenceID    *uuid.UUID
	OverrideAmount  *float64
	Notes           *string
}

type UpdateLessonInput struct {
	ScheduledAt     time.Time
	DurationMinutes int
	OverrideAmount  *float64
	Notes           *string
}

type LessonListFilter struct {
	TutorID   int64
	StudentID int64
	Status    string
	From      time.Time
	To        time.Time
}

type LessonRepository struct {
	db DBTX
}

func NewLessonRepository(db DBTX) *LessonRepository {
	return &LessonRepository{db: db}
}

func scanLesson(row pgx.Row) (*models.Lesson, error) {
	var lesson models.Lesson
	err := row.Scan(
		&lesson.ID,
		&lesson.StudentID,
		&lesson.TutorID,
		&lesson.Subject,
		&lesson.ScheduledAt,
		&lesson.DurationMinutes,
		&lesson.Status,
		&lesson.SessionID,
		&lesson.RecurrenceID,
		&lesson.OverrideAmount,
		&lesson.Notes,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func collectLessons(rows pgx.Rows) ([]models.Lesson, error) {
	defer rows.Close()
	lessons := make([]models.Lesson, 0)
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, *lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *LessonRepository) Create(ctx context.Context, input CreateLessonInput) (*models.Lesson, error) {
	query := `
		INSERT INTO lessons (student_id, tutor_id, subject, scheduled_at, duration_min, status, session_id, recurrence_id, override_amount, notes)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, $7, $8, $9)
		RETURNING ` + lessonColumns
	return scanLesson(r.db.QueryRow(
		ctx,
		query,
		input.StudentID,
		input.TutorID,
		input.Subject,
		input.ScheduledAt,
		input.DurationMinutes,
		input.SessionID,
		input.RecurrenceID,
		input.OverrideAmount,
		input.Notes,
	))
}

func (r *LessonRepository) GetByID(ctx context.Context, lessonID int64) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	return scanLesson(r.db.QueryRow(ctx, query, lessonID))
}

func (r *LessonRepository) List(ctx context.Context, filter LessonListFilter) ([]models.Lesson, error) {
	args := []any{filter.TutorID}
	whereParts := []string{"tutor_id = $1"}

	if filter.StudentID > 0 {
		args = append(args, filter.StudentID)
		whereParts = append(whereParts, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		whereParts = append(whereParts, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		whereParts = append(whereParts, fmt.Sprintf("scheduled_at < $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM lessons
		WHERE %s
		ORDER BY scheduled_at ASC, id ASC
	`, lessonColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectLessons(rows)
}

// ListActiveForDate returns the non-cancelled lessons whose scheduled start
// falls inside [dayStart, dayEnd), used to derive busy intervals.
func (r *LessonRepository) ListActiveForDate(ctx context.Context, tutorID int64, dayStart, dayEnd time.Time) ([]models.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE tutor_id = $1
		  AND status <> 'cancelled'
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, tutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return collectLessons(rows)
}

func (r *LessonRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE session_id = $1 ORDER BY scheduled_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	return collectLessons(rows)
}

// ListBillable returns the completed lessons for the given students inside
// [from, to) that no payment has ever claimed. The NOT EXISTS mirrors the
// unique constraint on payment_lessons.lesson_id.
func (r *LessonRepository) ListBillable(ctx context.Context, studentIDs []int64, from, to time.Time) ([]models.Lesson, error) {
	if len(studentIDs) == 0 {
		return []models.Lesson{}, nil
	}
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons l
		WHERE l.student_id = ANY($1)
		  AND l.status = 'completed'
		  AND l.scheduled_at >= $2
		  AND l.scheduled_at < $3
		  AND NOT EXISTS (
			SELECT 1 FROM payment_lessons pl WHERE pl.lesson_id = l.id
		  )
		ORDER BY l.scheduled_at ASC, l.id ASC
	`
	rows, err := r.db.Query(ctx, query, studentIDs, from, to)
	if err != nil {
		return nil, err
	}
	return collectLessons(rows)
}

func (r *LessonRepository) Update(ctx context.Context, lessonID int64, input UpdateLessonInput) (*models.Lesson, error) {
	query := `
		UPDATE lessons
		SET scheduled_at = $2, duration_min = $3, override_amount = $4, notes = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + lessonColumns
	return scanLesson(r.db.QueryRow(
		ctx,
		query,
		lessonID,
		input.ScheduledAt,
		input.DurationMinutes,
		input.OverrideAmount,
		input.Notes,
	))
}

func (r *LessonRepository) UpdateStatusIfCurrent(ctx context.Context, lessonID int64, currentStatus, nextStatus string) (*models.Lesson, error) {
	query := `
		UPDATE lessons
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + lessonColumns
	return scanLesson(r.db.QueryRow(ctx, query, lessonID, currentStatus, nextStatus))
}

// UpdateStatusBySession transitions every member of a session that is still
// in currentStatus, returning the updated rows.
func (r *LessonRepository) UpdateStatusBySession(ctx context.Context, sessionID uuid.UUID, currentStatus, nextStatus string) ([]models.Lesson, error) {
	query := `
		UPDATE lessons
		SET status = $3, updated_at = NOW()
		WHERE session_id = $1 AND status = $2
		RETURNING ` + lessonColumns
	rows, err := r.db.Query(ctx, query, sessionID, currentStatus, nextStatus)
	if err != nil {
		return nil, err
	}
	return collectLessons(rows)
}

func (r *LessonRepository) Delete(ctx context.Context, lessonID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, lessonID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *LessonRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM lessons WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *LessonRepository) DeleteBySeries(ctx context.Context, recurrenceID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM lessons WHERE recurrence_id = $1`, recurrenceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasConflict reports whether a non-cancelled lesson overlaps the half-open
// candidate range. excludeLessonID skips the lesson being rescheduled; pass 0
// for new bookings.
func (r *LessonRepository) HasConflict(ctx context.Context, tutorID int64, start time.Time, durationMinutes int, excludeLessonID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM lessons
			WHERE tutor_id = $1
			  AND id <> $4
			  AND status <> 'cancelled'
			  AND scheduled_at < ($2::timestamptz + ($3::int * INTERVAL '1 minute'))
			  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) > $2::timestamptz
		)
	`
	var hasConflict bool
	if err := r.db.QueryRow(ctx, query, tutorID, start, durationMinutes, excludeLessonID).Scan(&hasConflict); err != nil {
		return false, err
	}
	return hasConflict, nil
}
