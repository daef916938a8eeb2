package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/scheduling"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

type lessonApplicationService interface {
	CreateBooking(ctx context.Context, tutorID int64, input services.BookingInput) (*services.BookingResult, error)
	ListLessons(ctx context.Context, filter repository.LessonListFilter) ([]models.Lesson, error)
	GetLesson(ctx context.Context, tutorID, lessonID int64) (*models.LessonDetail, error)
	EditLesson(ctx context.Context, tutorID, lessonID int64, input services.EditLessonInput) (*models.Lesson, error)
	UpdateLessonStatus(ctx context.Context, tutorID, lessonID int64, action string) (*models.Lesson, error)
	UpdateSessionStatus(ctx context.Context, tutorID int64, sessionID uuid.UUID, action string) ([]models.Lesson, error)
	DeleteLesson(ctx context.Context, tutorID, lessonID int64) error
	DeleteSession(ctx context.Context, tutorID int64, sessionID uuid.UUID) (int64, error)
	DeleteSeries(ctx context.Context, tutorID int64, recurrenceID uuid.UUID) (int64, error)
}

type LessonHandler struct {
	service lessonApplicationService
}

func NewLessonHandler(service *services.ScheduleService) *LessonHandler {
	return &LessonHandler{service: service}
}

type bookingMemberRequest struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Subject   string `json:"subject" validate:"required"`
}

type bookLessonsRequest struct {
	Members         []bookingMemberRequest `json:"members" validate:"required,min=1,dive"`
	ScheduledAt     string                 `json:"scheduled_at" validate:"required"`
	DurationMinutes int                    `json:"duration_min" validate:"omitempty,gt=0"`
	Recurrence      string                 `json:"recurrence" validate:"omitempty,oneof=none weekly biweekly monthly"`
	Until           *string                `json:"until"`
	OverrideAmount  *float64               `json:"override_amount" validate:"omitempty,gt=0"`
	Notes           *string                `json:"notes"`
}

type editLessonRequest struct {
	ScheduledAt     string   `json:"scheduled_at" validate:"required"`
	DurationMinutes int      `json:"duration_min" validate:"required,gt=0"`
	OverrideAmount  *float64 `json:"override_amount" validate:"omitempty,gt=0"`
	Notes           *string  `json:"notes"`
}

type statusActionRequest struct {
	Action string `json:"action" validate:"required,oneof=complete cancel uncomplete reactivate"`
}

// BookLessons creates a single lesson, a combined block, or a whole recurring
// series from one request; the response carries every lesson materialized.
func (h *LessonHandler) BookLessons(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req bookLessonsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	rule, ok := scheduling.ParseRule(strings.TrimSpace(req.Recurrence))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "recurrence must be none, weekly, biweekly or monthly"})
	}

	var until *time.Time
	if req.Until != nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Until))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "until must be a valid RFC3339 timestamp"})
		}
		until = &parsed
	}

	pairs := make([]scheduling.MemberPair, 0, len(req.Members))
	for _, m := range req.Members {
		pairs = append(pairs, scheduling.MemberPair{StudentID: m.StudentID, Subject: strings.ToLower(strings.TrimSpace(m.Subject))})
	}

	result, err := h.service.CreateBooking(c.Context(), tutorID, services.BookingInput{
		Pairs:           pairs,
		StartAt:         scheduledAt,
		DurationMinutes: req.DurationMinutes,
		Recurrence:      rule,
		Until:           until,
		Notes:           req.Notes,
		OverrideAmount:  req.OverrideAmount,
	})
	if err != nil {
		return mapLessonError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"booking": result})
}

func (h *LessonHandler) ListLessons(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	filter := repository.LessonListFilter{TutorID: tutorID}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if status != models.LessonStatusScheduled && status != models.LessonStatusCompleted && status != models.LessonStatusCancelled {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be scheduled, completed or cancelled"})
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(c.Query("student_id")); raw != "" {
		studentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || studentID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id must be a positive integer"})
		}
		filter.StudentID = studentID
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be a valid RFC3339 timestamp"})
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be a valid RFC3339 timestamp"})
		}
		filter.To = to
	}

	lessons, err := h.service.ListLessons(c.Context(), filter)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"lessons": lessons})
}

func (h *LessonHandler) GetLesson(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	lessonID, err := parseLessonID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lesson id"})
	}

	lesson, err := h.service.GetLesson(c.Context(), tutorID, lessonID)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"lesson": lesson})
}

func (h *LessonHandler) UpdateLesson(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	lessonID, err := parseLessonID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lesson id"})
	}

	var req editLessonRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	lesson, err := h.service.EditLesson(c.Context(), tutorID, lessonID, services.EditLessonInput{
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		OverrideAmount:  req.OverrideAmount,
		Notes:           req.Notes,
	})
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"lesson": lesson})
}

func (h *LessonHandler) UpdateStatus(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	lessonID, err := parseLessonID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lesson id"})
	}

	var req statusActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	lesson, err := h.service.UpdateLessonStatus(c.Context(), tutorID, lessonID, req.Action)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"lesson": lesson})
}

func (h *LessonHandler) DeleteLesson(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	lessonID, err := parseLessonID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lesson id"})
	}

	if err := h.service.DeleteLesson(c.Context(), tutorID, lessonID); err != nil {
		return mapLessonError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateSessionStatus applies one action to every member of a combined block.
func (h *LessonHandler) UpdateSessionStatus(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := uuid.Parse(c.Params("sessionID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req statusActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	lessons, err := h.service.UpdateSessionStatus(c.Context(), tutorID, sessionID, req.Action)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"lessons": lessons})
}

func (h *LessonHandler) DeleteSession(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := uuid.Parse(c.Params("sessionID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	deleted, err := h.service.DeleteSession(c.Context(), tutorID, sessionID)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func (h *LessonHandler) DeleteSeries(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	recurrenceID, err := uuid.Parse(c.Params("recurrenceID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid recurrence id"})
	}

	deleted, err := h.service.DeleteSeries(c.Context(), tutorID, recurrenceID)
	if err != nil {
		return mapLessonError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func parseLessonID(c *fiber.Ctx) (int64, error) {
	lessonID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || lessonID <= 0 {
		return 0, strconv.ErrSyntax
	}
	return lessonID, nil
}

func mapLessonError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Requested time conflicts with another lesson"})
	case errors.Is(err, services.ErrLessonBilled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Lesson is on an invoice and cannot be changed"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Lesson not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process lesson request"})
	}
}
