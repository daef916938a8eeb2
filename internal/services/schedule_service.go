package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/billing"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/scheduling"
)

type settingsReader interface {
	GetByTutorID(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error)
}

type availabilityReader interface {
	ListByWeekday(ctx context.Context, tutorID int64, weekday time.Weekday) ([]models.TutorAvailability, error)
	ListBreaksForDate(ctx context.Context, tutorID int64, date time.Time) ([]models.TutorBreak, error)
}

type dayLessonReader interface {
	ListActiveForDate(ctx context.Context, tutorID int64, dayStart, dayEnd time.Time) ([]models.Lesson, error)
}

// ScheduleService materializes bookings into lesson records and answers
// conflict and free-slot questions. All clock arithmetic happens in the
// business timezone.
type ScheduleService struct {
	db               *pgxpool.Pool
	lessonRepo       *repository.LessonRepository
	paymentRepo      *repository.PaymentRepository
	settingsRepo     settingsReader
	availabilityRepo availabilityReader
	dayLessons       dayLessonReader
	loc              *time.Location
}

func NewScheduleService(
	db *pgxpool.Pool,
	lessonRepo *repository.LessonRepository,
	paymentRepo *repository.PaymentRepository,
	settingsRepo settingsReader,
	availabilityRepo availabilityReader,
	loc *time.Location,
) *ScheduleService {
	return &ScheduleService{
		db:               db,
		lessonRepo:       lessonRepo,
		paymentRepo:      paymentRepo,
		settingsRepo:     settingsRepo,
		availabilityRepo: availabilityRepo,
		dayLessons:       lessonRepo,
		loc:              loc,
	}
}

type BookingInput struct {
	Pairs           []scheduling.MemberPair
	StartAt         time.Time
	DurationMinutes int
	Recurrence      scheduling.Rule
	Until           *time.Time
	Notes           *string
	OverrideAmount  *float64
}

type BookingResult struct {
	Policy  scheduling.DurationPolicy `json:"duration_policy"`
	Lessons []models.Lesson           `json:"lessons"`
}

// CreateBooking turns one user request into its full set of lesson records:
// one lesson per recurrence instance per member pair, created atomically. The
// advisory lock on the tutor serializes concurrent bookings so the conflict
// check and the inserts cannot interleave.
func (s *ScheduleService) CreateBooking(ctx context.Context, tutorID int64, input BookingInput) (*BookingResult, error) {
	if len(input.Pairs) == 0 || input.StartAt.IsZero() {
		return nil, ErrInvalidInput
	}
	if input.DurationMinutes <= 0 && !hasMultiSubjectStudent(input.Pairs) {
		return nil, ErrInvalidInput
	}
	for _, p := range input.Pairs {
		if p.StudentID <= 0 || p.Subject == "" {
			return nil, ErrInvalidInput
		}
	}

	settings, err := s.loadSettings(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	plan := scheduling.PlanDurations(input.Pairs, input.DurationMinutes, func(subject string) int {
		return billing.BaseDuration(subject, settings)
	})
	occurrences := scheduling.Expand(input.StartAt, input.Recurrence, input.Until)

	var recurrenceID *uuid.UUID
	if input.Recurrence != scheduling.RuleNone {
		id := uuid.New()
		recurrenceID = &id
	}
	combined := len(plan.Members) > 1

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", tutorID); err != nil {
		return nil, err
	}

	txLessonRepo := repository.NewLessonRepository(tx)
	created := make([]models.Lesson, 0, len(occurrences)*len(plan.Members))

	for _, startAt := range occurrences {
		hasConflict, err := txLessonRepo.HasConflict(ctx, tutorID, startAt, plan.TotalMinutes, 0)
		if err != nil {
			return nil, err
		}
		if hasConflict {
			return nil, ErrConflict
		}

		var sessionID *uuid.UUID
		if combined {
			id := uuid.New()
			sessionID = &id
		}
		for _, member := range plan.Members {
			lesson, err := txLessonRepo.Create(ctx, repository.CreateLessonInput{
				StudentID:       member.StudentID,
				TutorID:         tutorID,
				Subject:         member.Subject,
				ScheduledAt:     startAt,
				DurationMinutes: member.DurationMinutes,
				SessionID:       sessionID,
				RecurrenceID:    recurrenceID,
				OverrideAmount:  input.OverrideAmount,
				Notes:           input.Notes,
			})
			if err != nil {
				return nil, err
			}
			created = append(created, *lesson)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &BookingResult{Policy: plan.Policy, Lessons: created}, nil
}

// UpdateLessonStatus applies a complete/cancel/uncomplete action to one
// lesson. A lesson that is already on an invoice refuses every transition:
// its billing state is frozen.
func (s *ScheduleService) UpdateLessonStatus(ctx context.Context, tutorID, lessonID int64, action string) (*models.Lesson, error) {
	lesson, err := s.lessonRepo.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lesson.TutorID != tutorID {
		return nil, ErrNotFound
	}

	current, next, err := statusTransition(lesson.Status, action)
	if err != nil {
		return nil, err
	}

	if err := s.requireUnbilled(ctx, lessonID); err != nil {
		return nil, err
	}

	updated, err := s.lessonRepo.UpdateStatusIfCurrent(ctx, lessonID, current, next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return updated, nil
}

// UpdateSessionStatus applies the action to every member of a combined
// session together, so a group block completes or cancels as a unit.
func (s *ScheduleService) UpdateSessionStatus(ctx context.Context, tutorID int64, sessionID uuid.UUID, action string) ([]models.Lesson, error) {
	members, err := s.lessonRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 || members[0].TutorID != tutorID {
		return nil, ErrNotFound
	}

	// All members share a status in normal operation; transition from the
	// first member's state.
	current, next, err := statusTransition(members[0].Status, action)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		if err := s.requireUnbilled(ctx, member.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.lessonRepo.UpdateStatusBySession(ctx, sessionID, current, next)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, ErrInvalidTransition
	}
	return updated, nil
}

type EditLessonInput struct {
	ScheduledAt     time.Time
	DurationMinutes int
	OverrideAmount  *float64
	Notes           *string
}

// EditLesson reschedules or reprices a single lesson, conflict-checking the
// new slot against everything except the lesson itself. Already-invoiced
// lessons are frozen.
func (s *ScheduleService) EditLesson(ctx context.Context, tutorID, lessonID int64, input EditLessonInput) (*models.Lesson, error) {
	if input.DurationMinutes <= 0 || input.ScheduledAt.IsZero() {
		return nil, ErrInvalidInput
	}

	lesson, err := s.lessonRepo.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lesson.TutorID != tutorID {
		return nil, ErrNotFound
	}
	if err := s.requireUnbilled(ctx, lessonID); err != nil {
		return nil, err
	}

	hasConflict, err := s.lessonRepo.HasConflict(ctx, tutorID, input.ScheduledAt, input.DurationMinutes, lessonID)
	if err != nil {
		return nil, err
	}
	if hasConflict {
		return nil, ErrConflict
	}

	return s.lessonRepo.Update(ctx, lessonID, repository.UpdateLessonInput{
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: input.DurationMinutes,
		OverrideAmount:  input.OverrideAmount,
		Notes:           input.Notes,
	})
}

func (s *ScheduleService) GetLesson(ctx context.Context, tutorID, lessonID int64) (*models.LessonDetail, error) {
	lesson, err := s.lessonRepo.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lesson.TutorID != tutorID {
		return nil, ErrNotFound
	}

	detail := &models.LessonDetail{Lesson: *lesson}
	links, err := s.paymentRepo.ListLessonLinks(ctx, []int64{lessonID})
	if err != nil {
		return nil, err
	}
	if link, ok := links[lessonID]; ok {
		amount := link.Amount
		detail.Billed = true
		detail.BilledAmount = &amount
	}
	return detail, nil
}

func (s *ScheduleService) ListLessons(ctx context.Context, filter repository.LessonListFilter) ([]models.Lesson, error) {
	return s.lessonRepo.List(ctx, filter)
}

func (s *ScheduleService) DeleteLesson(ctx context.Context, tutorID, lessonID int64) error {
	lesson, err := s.lessonRepo.GetByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if lesson.TutorID != tutorID {
		return ErrNotFound
	}
	if err := s.requireUnbilled(ctx, lessonID); err != nil {
		return err
	}
	if err := s.lessonRepo.Delete(ctx, lessonID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteSession removes every member of a combined block.
func (s *ScheduleService) DeleteSession(ctx context.Context, tutorID int64, sessionID uuid.UUID) (int64, error) {
	members, err := s.lessonRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 || members[0].TutorID != tutorID {
		return 0, ErrNotFound
	}
	for _, member := range members {
		if err := s.requireUnbilled(ctx, member.ID); err != nil {
			return 0, err
		}
	}
	return s.lessonRepo.DeleteBySession(ctx, sessionID)
}

// DeleteSeries removes every remaining lesson of a recurrence expansion,
// skipping nothing: invoiced members block the whole delete.
func (s *ScheduleService) DeleteSeries(ctx context.Context, tutorID int64, recurrenceID uuid.UUID) (int64, error) {
	lessons, err := s.lessonRepo.List(ctx, repository.LessonListFilter{TutorID: tutorID})
	if err != nil {
		return 0, err
	}
	found := false
	for _, lesson := range lessons {
		if lesson.RecurrenceID != nil && *lesson.RecurrenceID == recurrenceID {
			found = true
			if err := s.requireUnbilled(ctx, lesson.ID); err != nil {
				return 0, err
			}
		}
	}
	if !found {
		return 0, ErrNotFound
	}
	return s.lessonRepo.DeleteBySeries(ctx, recurrenceID)
}

// CheckConflict answers a reschedule/drop-in probe without writing anything.
func (s *ScheduleService) CheckConflict(ctx context.Context, tutorID int64, start time.Time, durationMinutes int, excludeLessonID int64) (bool, error) {
	if durationMinutes <= 0 {
		return true, ErrInvalidInput
	}
	return s.lessonRepo.HasConflict(ctx, tutorID, start, durationMinutes, excludeLessonID)
}

type FreeSlotWindow struct {
	Window scheduling.Interval `json:"window"`
	Slots  []scheduling.Slot   `json:"slots"`
}

// FreeSlots enumerates candidate start times on a date, one window per
// availability rule for that weekday, each slot tagged busy or free. Busy
// intervals come from non-cancelled lessons (timestamps normalized through
// the business timezone) and the date's breaks.
func (s *ScheduleService) FreeSlots(ctx context.Context, tutorID int64, date time.Time, requiredMinutes, stepMinutes int) ([]FreeSlotWindow, error) {
	if requiredMinutes <= 0 {
		return nil, ErrInvalidInput
	}

	dayStart, dayEnd := DayRange(date, s.loc)
	windows, err := s.availabilityRepo.ListByWeekday(ctx, tutorID, dayStart.Weekday())
	if err != nil {
		return nil, err
	}

	busy, err := s.busyIntervals(ctx, tutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	out := make([]FreeSlotWindow, 0, len(windows))
	for _, w := range windows {
		window := scheduling.Interval{StartMin: w.StartMinutes, EndMin: w.EndMinutes}
		out = append(out, FreeSlotWindow{
			Window: window,
			Slots:  scheduling.ListFreeStarts(window, stepMinutes, requiredMinutes, busy),
		})
	}
	return out, nil
}

// busyIntervals assembles the date's occupied ranges. Anything that cannot
// be represented sanely fails closed: a lesson spilling past midnight blocks
// to end of day rather than being ignored.
func (s *ScheduleService) busyIntervals(ctx context.Context, tutorID int64, dayStart, dayEnd time.Time) ([]scheduling.Interval, error) {
	lessons, err := s.dayLessons.ListActiveForDate(ctx, tutorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	busy := make([]scheduling.Interval, 0, len(lessons))
	for _, lesson := range lessons {
		start := scheduling.NormalizeClock(lesson.ScheduledAt, s.loc)
		end := start + lesson.DurationMinutes
		if end > 24*60 {
			end = 24 * 60
		}
		busy = append(busy, scheduling.Interval{StartMin: start, EndMin: end})
	}

	breaks, err := s.availabilityRepo.ListBreaksForDate(ctx, tutorID, dayStart)
	if err != nil {
		return nil, err
	}
	for _, b := range breaks {
		busy = append(busy, scheduling.Interval{StartMin: b.StartMinutes, EndMin: b.EndMinutes})
	}
	return busy, nil
}

func (s *ScheduleService) requireUnbilled(ctx context.Context, lessonID int64) error {
	links, err := s.paymentRepo.ListLessonLinks(ctx, []int64{lessonID})
	if err != nil {
		return err
	}
	if _, billed := links[lessonID]; billed {
		return ErrLessonBilled
	}
	return nil
}

func (s *ScheduleService) loadSettings(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error) {
	settings, err := s.settingsRepo.GetByTutorID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Missing settings never block scheduling; the resolver's hard
			// defaults apply.
			return nil, nil
		}
		return nil, err
	}
	return settings, nil
}

func hasMultiSubjectStudent(pairs []scheduling.MemberPair) bool {
	subjects := make(map[int64]string, len(pairs))
	for _, p := range pairs {
		if prev, ok := subjects[p.StudentID]; ok && prev != p.Subject {
			return true
		}
		subjects[p.StudentID] = p.Subject
	}
	return false
}

// statusTransition maps a user action and the current lesson status to a
// compare-and-swap pair.
func statusTransition(currentStatus, action string) (string, string, error) {
	switch action {
	case "complete":
		if currentStatus != models.LessonStatusScheduled {
			return "", "", ErrInvalidTransition
		}
		return models.LessonStatusScheduled, models.LessonStatusCompleted, nil
	case "cancel":
		if currentStatus == models.LessonStatusCancelled {
			return "", "", ErrInvalidTransition
		}
		return currentStatus, models.LessonStatusCancelled, nil
	case "uncomplete":
		if currentStatus != models.LessonStatusCompleted {
			return "", "", ErrInvalidTransition
		}
		return models.LessonStatusCompleted, models.LessonStatusScheduled, nil
	case "reactivate":
		if currentStatus != models.LessonStatusCancelled {
			return "", "", ErrInvalidTransition
		}
		return models.LessonStatusCancelled, models.LessonStatusScheduled, nil
	default:
		return "", "", ErrInvalidStatus
	}
}
