package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

type summaryApplicationService interface {
	Summarize(ctx context.Context, tutorID int64, month time.Time) (*services.MonthlySummary, error)
}

type SummaryHandler struct {
	service summaryApplicationService
}

func NewSummaryHandler(service *services.SummaryService) *SummaryHandler {
	return &SummaryHandler{service: service}
}

func (h *SummaryHandler) MonthlySummary(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	month, err := parseMonth(c.Query("month"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month must be YYYY-MM"})
	}

	summary, err := h.service.Summarize(c.Context(), tutorID, month)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build monthly summary"})
	}
	return c.JSON(fiber.Map{"summary": summary})
}
