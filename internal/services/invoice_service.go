package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/billing"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
)

// InvoiceService creates a family's monthly payment from its completed,
// not-yet-billed lessons. Generation is a single transaction: the payment row
// and its lesson links commit together or not at all, and the unique
// constraints on (parent_id, billing_month) and payment_lessons.lesson_id
// keep billing at-most-once even if two runs race past the advisory lock.
type InvoiceService struct {
	db           *pgxpool.Pool
	paymentRepo  *repository.PaymentRepository
	lessonRepo   *repository.LessonRepository
	familyRepo   *repository.FamilyRepository
	settingsRepo settingsReader
	loc          *time.Location
}

func NewInvoiceService(
	db *pgxpool.Pool,
	paymentRepo *repository.PaymentRepository,
	lessonRepo *repository.LessonRepository,
	familyRepo *repository.FamilyRepository,
	settingsRepo settingsReader,
	loc *time.Location,
) *InvoiceService {
	return &InvoiceService{
		db:           db,
		paymentRepo:  paymentRepo,
		lessonRepo:   lessonRepo,
		familyRepo:   familyRepo,
		settingsRepo: settingsRepo,
		loc:          loc,
	}
}

// Generate invoices one family for one month. Lessons are priced with the
// tutor's settings as of now, so a rate change retroactively affects
// un-invoiced lessons; each link freezes the amount it was billed at.
func (s *InvoiceService) Generate(ctx context.Context, tutorID, parentID int64, month time.Time) (*models.PaymentDetail, error) {
	if parentID <= 0 {
		return nil, ErrInvalidInput
	}
	billingMonth := MonthStart(month)

	if _, err := s.familyRepo.GetParent(ctx, parentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	settings, err := s.loadSettings(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Serializes invoice runs per family; two callers cannot both pass the
	// existence check below.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", parentID); err != nil {
		return nil, err
	}

	txPaymentRepo := repository.NewPaymentRepository(tx)
	txLessonRepo := repository.NewLessonRepository(tx)
	txFamilyRepo := repository.NewFamilyRepository(tx)

	if _, err := txPaymentRepo.GetByParentMonth(ctx, parentID, billingMonth); err == nil {
		return nil, ErrAlreadyInvoiced
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	students, err := txFamilyRepo.ListStudentsByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	studentIDs := make([]int64, 0, len(students))
	for _, student := range students {
		studentIDs = append(studentIDs, student.ID)
	}

	from, to := MonthRange(billingMonth, s.loc)
	candidates, err := txLessonRepo.ListBillable(ctx, studentIDs, from, to)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNothingToInvoice
	}

	// Each line is rounded to cents by the resolver; amount_due is their
	// exact sum, so the payment always equals the sum of its links.
	lineAmounts := make([]decimal.Decimal, len(candidates))
	total := decimal.Zero
	for i, lesson := range candidates {
		res := billing.Resolve(billing.ResolveInput{
			Subject:         lesson.Subject,
			DurationMinutes: lesson.DurationMinutes,
			Combined:        lesson.SessionID != nil,
			OverrideAmount:  lesson.OverrideAmount,
			Settings:        settings,
		})
		lineAmounts[i] = res.Amount
		total = total.Add(res.Amount)
	}

	payment, err := txPaymentRepo.Create(ctx, repository.CreatePaymentInput{
		ParentID:     parentID,
		BillingMonth: billingMonth,
		AmountDue:    total.InexactFloat64(),
	})
	if err != nil {
		if uniqueViolation(err, "payments_parent_month_key") {
			return nil, ErrAlreadyInvoiced
		}
		return nil, err
	}

	links := make([]models.PaymentLesson, 0, len(candidates))
	for i, lesson := range candidates {
		link, err := txPaymentRepo.CreateLesson(ctx, payment.ID, lesson.ID, lineAmounts[i].InexactFloat64())
		if err != nil {
			if uniqueViolation(err, "payment_lessons_lesson_id_key") {
				return nil, ErrLessonBilled
			}
			return nil, err
		}
		links = append(links, *link)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.PaymentDetail{Payment: *payment, Lessons: links}, nil
}

// RecordPayment registers money received against an invoice, moving it to
// partial or paid. Amounts accumulate across multiple recordings.
func (s *InvoiceService) RecordPayment(ctx context.Context, paymentID int64, amount float64, paidAt *time.Time, notes *string) (*models.Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txPaymentRepo := repository.NewPaymentRepository(tx)
	payment, err := txPaymentRepo.GetByIDForUpdate(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if payment.Status == models.PaymentStatusPaid {
		return nil, ErrPaymentAlreadySettled
	}

	newPaid := decimal.NewFromFloat(payment.AmountPaid).
		Add(decimal.NewFromFloat(amount)).
		Round(2)
	due := decimal.NewFromFloat(payment.AmountDue)

	status := models.PaymentStatusPartial
	var settledAt *time.Time
	if newPaid.GreaterThanOrEqual(due) {
		status = models.PaymentStatusPaid
		when := time.Now().UTC()
		if paidAt != nil {
			when = *paidAt
		}
		settledAt = &when
	}

	updated, err := txPaymentRepo.UpdateReceived(ctx, paymentID, newPaid.InexactFloat64(), status, settledAt, notes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *InvoiceService) Get(ctx context.Context, paymentID int64) (*models.PaymentDetail, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	links, err := s.paymentRepo.ListLessonsByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &models.PaymentDetail{Payment: *payment, Lessons: links}, nil
}

func (s *InvoiceService) ListByMonth(ctx context.Context, month time.Time) ([]models.Payment, error) {
	return s.paymentRepo.ListByMonth(ctx, MonthStart(month))
}

func (s *InvoiceService) loadSettings(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error) {
	settings, err := s.settingsRepo.GetByTutorID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return settings, nil
}
