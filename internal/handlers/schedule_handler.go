package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

type scheduleQueryService interface {
	FreeSlots(ctx context.Context, tutorID int64, date time.Time, requiredMinutes, stepMinutes int) ([]services.FreeSlotWindow, error)
	CheckConflict(ctx context.Context, tutorID int64, start time.Time, durationMinutes int, excludeLessonID int64) (bool, error)
}

// ScheduleHandler answers the read-only calendar probes: candidate start
// times for a date and yes/no conflict checks for a concrete slot.
type ScheduleHandler struct {
	service scheduleQueryService
	loc     *time.Location
}

func NewScheduleHandler(service *services.ScheduleService, loc *time.Location) *ScheduleHandler {
	return &ScheduleHandler{service: service, loc: loc}
}

const defaultSlotStepMinutes = 30

func (h *ScheduleHandler) FreeSlots(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(c.Query("date")), h.loc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
	}

	duration, err := strconv.Atoi(strings.TrimSpace(c.Query("duration")))
	if err != nil || duration <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be a positive number of minutes"})
	}

	step := defaultSlotStepMinutes
	if raw := strings.TrimSpace(c.Query("step")); raw != "" {
		step, err = strconv.Atoi(raw)
		if err != nil || step <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "step must be a positive number of minutes"})
		}
	}

	windows, err := h.service.FreeSlots(c.Context(), tutorID, date, duration, step)
	if err != nil {
		return mapScheduleError(c, err)
	}
	return c.JSON(fiber.Map{
		"date":    date.Format("2006-01-02"),
		"windows": windows,
	})
}

func (h *ScheduleHandler) CheckConflict(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("scheduled_at")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	duration, err := strconv.Atoi(strings.TrimSpace(c.Query("duration")))
	if err != nil || duration <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be a positive number of minutes"})
	}

	var excludeLessonID int64
	if raw := strings.TrimSpace(c.Query("exclude_lesson_id")); raw != "" {
		excludeLessonID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || excludeLessonID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exclude_lesson_id must be a positive integer"})
		}
	}

	busy, err := h.service.CheckConflict(c.Context(), tutorID, start, duration, excludeLessonID)
	if err != nil {
		return mapScheduleError(c, err)
	}
	return c.JSON(fiber.Map{"conflict": busy})
}

func mapScheduleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process schedule request"})
	}
}
