package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
)

type rateSettingsStore interface {
	GetByTutorID(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error)
	Upsert(ctx context.Context, settings *models.TutorRateSettings) (*models.TutorRateSettings, error)
}

// RatesHandler reads and writes the tutor's rate configuration directly
// through the repository; there is no service-level logic to apply.
type RatesHandler struct {
	store rateSettingsStore
}

func NewRatesHandler(store *repository.RateSettingsRepository) *RatesHandler {
	return &RatesHandler{store: store}
}

type subjectRateRequest struct {
	Rate            float64         `json:"rate" validate:"required,gt=0"`
	BaseDurationMin int             `json:"base_min" validate:"required,gt=0"`
	DurationPrices  map[int]float64 `json:"duration_prices"`
}

type updateRatesRequest struct {
	DefaultRate         float64                       `json:"default_rate" validate:"required,gt=0"`
	DefaultBaseMin      int                           `json:"default_base_min" validate:"required,gt=0"`
	SubjectRates        map[string]subjectRateRequest `json:"subject_rates" validate:"omitempty,dive"`
	CombinedSessionRate *float64                      `json:"combined_session_rate" validate:"omitempty,gt=0"`
}

func (h *RatesHandler) GetRates(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	settings, err := h.store.GetByTutorID(c.Context(), tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rate settings not configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load rate settings"})
	}
	return c.JSON(fiber.Map{"settings": settings})
}

func (h *RatesHandler) UpdateRates(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req updateRatesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}
	for subject, rate := range req.SubjectRates {
		if strings.TrimSpace(subject) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subject_rates must not contain empty subject names"})
		}
		for minutes := range rate.DurationPrices {
			if minutes <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_prices keys must be positive minutes"})
			}
		}
	}

	subjectRates := make(map[string]models.SubjectRate, len(req.SubjectRates))
	for subject, rate := range req.SubjectRates {
		subjectRates[strings.ToLower(strings.TrimSpace(subject))] = models.SubjectRate{
			Rate:            rate.Rate,
			BaseDurationMin: rate.BaseDurationMin,
			DurationPrices:  rate.DurationPrices,
		}
	}

	settings, err := h.store.Upsert(c.Context(), &models.TutorRateSettings{
		TutorID:             tutorID,
		DefaultRate:         req.DefaultRate,
		DefaultBaseMin:      req.DefaultBaseMin,
		SubjectRates:        subjectRates,
		CombinedSessionRate: req.CombinedSessionRate,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save rate settings"})
	}
	return c.JSON(fiber.Map{"settings": settings})
}
