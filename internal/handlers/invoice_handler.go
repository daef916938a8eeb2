package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/services"
)

type invoiceApplicationService interface {
	Generate(ctx context.Context, tutorID, parentID int64, month time.Time) (*models.PaymentDetail, error)
	RecordPayment(ctx context.Context, paymentID int64, amount float64, paidAt *time.Time, notes *string) (*models.Payment, error)
	Get(ctx context.Context, paymentID int64) (*models.PaymentDetail, error)
	ListByMonth(ctx context.Context, month time.Time) ([]models.Payment, error)
}

type InvoiceHandler struct {
	service invoiceApplicationService
}

func NewInvoiceHandler(service *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

type generateInvoiceRequest struct {
	ParentID int64  `json:"parent_id" validate:"required,gt=0"`
	Month    string `json:"month" validate:"required"`
}

type recordPaymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	PaidAt *string `json:"paid_at"`
	Notes  *string `json:"notes"`
}

// GenerateInvoice bills one family for one month. Generation is explicit and
// idempotent-by-rejection: a second run for the same family and month gets a
// conflict, never a duplicate invoice.
func (h *InvoiceHandler) GenerateInvoice(c *fiber.Ctx) error {
	tutorID, ok := requireTutor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req generateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	month, err := parseMonth(req.Month)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month must be YYYY-MM"})
	}

	detail, err := h.service.Generate(c.Context(), tutorID, req.ParentID, month)
	if err != nil {
		return mapInvoiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"invoice": detail})
}

func (h *InvoiceHandler) ListInvoices(c *fiber.Ctx) error {
	if _, ok := requireTutor(c); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	month, err := parseMonth(c.Query("month"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month must be YYYY-MM"})
	}

	invoices, err := h.service.ListByMonth(c.Context(), month)
	if err != nil {
		return mapInvoiceError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	if _, ok := requireTutor(c); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	paymentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || paymentID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid invoice id"})
	}

	detail, err := h.service.Get(c.Context(), paymentID)
	if err != nil {
		return mapInvoiceError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": detail})
}

// RecordPayment registers received money against an invoice; amounts
// accumulate across calls until the invoice settles.
func (h *InvoiceHandler) RecordPayment(c *fiber.Ctx) error {
	if _, ok := requireTutor(c); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	paymentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || paymentID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid invoice id"})
	}

	var req recordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	var paidAt *time.Time
	if req.PaidAt != nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.PaidAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "paid_at must be a valid RFC3339 timestamp"})
		}
		paidAt = &parsed
	}

	payment, err := h.service.RecordPayment(c.Context(), paymentID, req.Amount, paidAt, req.Notes)
	if err != nil {
		return mapInvoiceError(c, err)
	}
	return c.JSON(fiber.Map{"payment": payment})
}

func parseMonth(raw string) (time.Time, error) {
	return time.Parse("2006-01", strings.TrimSpace(raw))
}

func mapInvoiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyInvoiced), errors.Is(err, services.ErrLessonBilled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrPaymentAlreadySettled):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNothingToInvoice):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invoice not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process invoice request"})
	}
}
