package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/billing"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
)

type summaryLessonReader interface {
	List(ctx context.Context, filter repository.LessonListFilter) ([]models.Lesson, error)
}

type familyReader interface {
	ListParents(ctx context.Context) ([]models.Parent, error)
	ListStudentsByParent(ctx context.Context, parentID int64) ([]models.Student, error)
}

type paymentLinkReader interface {
	ListLessonLinks(ctx context.Context, lessonIDs []int64) (map[int64]models.PaymentLesson, error)
	ListByIDs(ctx context.Context, paymentIDs []int64) (map[int64]models.Payment, error)
}

// SummaryService is the read-only monthly report: every lesson in the month
// classified into a lifecycle bucket, amounts totalled per family and
// overall. It never writes and is safe to call repeatedly.
type SummaryService struct {
	lessons  summaryLessonReader
	families familyReader
	payments paymentLinkReader
	settings settingsReader
	loc      *time.Location
}

func NewSummaryService(
	lessons summaryLessonReader,
	families familyReader,
	payments paymentLinkReader,
	settings settingsReader,
	loc *time.Location,
) *SummaryService {
	return &SummaryService{
		lessons:  lessons,
		families: families,
		payments: payments,
		settings: settings,
		loc:      loc,
	}
}

type FamilySummary struct {
	ParentID   int64  `json:"parent_id"`
	ParentName string `json:"parent_name"`

	ScheduledCount int `json:"scheduled_count"`
	CompletedCount int `json:"completed_count"`
	InvoicedCount  int `json:"invoiced_count"`
	PaidCount      int `json:"paid_count"`
	CancelledCount int `json:"cancelled_count"`
	// CombinedSessionCount counts distinct combined blocks, not their member
	// lessons, so a group booking is one session in session-level reporting.
	CombinedSessionCount int `json:"combined_session_count"`

	ExpectedAmount  float64 `json:"expected_amount"`
	BillableAmount  float64 `json:"billable_amount"`
	InvoicedAmount  float64 `json:"invoiced_amount"`
	CollectedAmount float64 `json:"collected_amount"`
}

type SummaryTotals struct {
	ScheduledCount       int     `json:"scheduled_count"`
	CompletedCount       int     `json:"completed_count"`
	InvoicedCount        int     `json:"invoiced_count"`
	PaidCount            int     `json:"paid_count"`
	CancelledCount       int     `json:"cancelled_count"`
	CombinedSessionCount int     `json:"combined_session_count"`
	ExpectedAmount       float64 `json:"expected_amount"`
	BillableAmount       float64 `json:"billable_amount"`
	InvoicedAmount       float64 `json:"invoiced_amount"`
	CollectedAmount      float64 `json:"collected_amount"`
}

type MonthlySummary struct {
	Month    string          `json:"month"`
	Families []FamilySummary `json:"families"`
	Totals   SummaryTotals   `json:"totals"`
	// Warnings flag families whose data could only be partially loaded;
	// they are reported rather than silently dropped from the totals.
	Warnings []string `json:"warnings,omitempty"`
}

func (s *SummaryService) Summarize(ctx context.Context, tutorID int64, month time.Time) (*MonthlySummary, error) {
	from, to := MonthRange(month, s.loc)
	summary := &MonthlySummary{
		Month:    from.Format("2006-01"),
		Families: make([]FamilySummary, 0),
	}

	lessons, err := s.lessons.List(ctx, repository.LessonListFilter{TutorID: tutorID, From: from, To: to})
	if err != nil {
		return nil, err
	}

	lessonIDs := lo.Map(lessons, func(l models.Lesson, _ int) int64 { return l.ID })
	links, err := s.payments.ListLessonLinks(ctx, lessonIDs)
	if err != nil {
		return nil, err
	}
	paymentIDs := lo.Uniq(lo.Map(lo.Values(links), func(link models.PaymentLesson, _ int) int64 { return link.PaymentID }))
	paymentsByID, err := s.payments.ListByIDs(ctx, paymentIDs)
	if err != nil {
		return nil, err
	}

	settings, err := s.loadSettings(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	parents, err := s.families.ListParents(ctx)
	if err != nil {
		return nil, err
	}

	studentParent := make(map[int64]int64)
	for _, parent := range parents {
		students, err := s.families.ListStudentsByParent(ctx, parent.ID)
		if err != nil {
			// Partial data: keep the family visible with a warning instead
			// of silently omitting it from the totals.
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("family %q (id %d): students unavailable, its lessons are not totalled", parent.Name, parent.ID))
			continue
		}
		for _, student := range students {
			studentParent[student.ID] = parent.ID
		}
	}

	byParent := make(map[int64]*familyAccumulator, len(parents))
	for _, parent := range parents {
		byParent[parent.ID] = &familyAccumulator{parentID: parent.ID, parentName: parent.Name}
	}

	for _, lesson := range lessons {
		parentID, ok := studentParent[lesson.StudentID]
		if !ok {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("lesson %d: student %d not attached to any family", lesson.ID, lesson.StudentID))
			continue
		}
		acc, ok := byParent[parentID]
		if !ok {
			continue
		}

		var link *models.PaymentLesson
		if l, found := links[lesson.ID]; found {
			link = &l
		}
		var payment *models.Payment
		if link != nil {
			if p, found := paymentsByID[link.PaymentID]; found {
				payment = &p
			}
		}
		bucket, amount := classifyLesson(lesson, link, payment, settings)
		acc.add(lesson, bucket, amount)
	}

	grand := SummaryTotals{}
	grandExpected, grandBillable, grandInvoiced, grandCollected := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, parent := range parents {
		acc := byParent[parent.ID]
		if acc == nil || acc.empty() {
			continue
		}
		family := acc.summary()
		summary.Families = append(summary.Families, family)

		grand.ScheduledCount += family.ScheduledCount
		grand.CompletedCount += family.CompletedCount
		grand.InvoicedCount += family.InvoicedCount
		grand.PaidCount += family.PaidCount
		grand.CancelledCount += family.CancelledCount
		grand.CombinedSessionCount += family.CombinedSessionCount
		grandExpected = grandExpected.Add(acc.expected)
		grandBillable = grandBillable.Add(acc.billable)
		grandInvoiced = grandInvoiced.Add(acc.invoicedAmt)
		grandCollected = grandCollected.Add(acc.collected)
	}
	grand.ExpectedAmount = grandExpected.InexactFloat64()
	grand.BillableAmount = grandBillable.InexactFloat64()
	grand.InvoicedAmount = grandInvoiced.InexactFloat64()
	grand.CollectedAmount = grandCollected.InexactFloat64()
	summary.Totals = grand

	return summary, nil
}

const (
	bucketCancelled = "cancelled"
	bucketScheduled = "scheduled"
	bucketCompleted = "completed"
	bucketInvoiced  = "invoiced"
	bucketPaid      = "paid"
)

// classifyLesson maps one lesson to its lifecycle bucket and the amount it
// contributes. Invoiced and paid lessons report the frozen link amount, never
// a fresh recomputation; un-invoiced lessons are priced for display with the
// current settings.
func classifyLesson(lesson models.Lesson, link *models.PaymentLesson, payment *models.Payment, settings *models.TutorRateSettings) (string, decimal.Decimal) {
	switch {
	case lesson.Status == models.LessonStatusCancelled:
		return bucketCancelled, decimal.Zero
	case lesson.Status == models.LessonStatusScheduled:
		return bucketScheduled, displayAmount(lesson, settings)
	case link == nil:
		return bucketCompleted, displayAmount(lesson, settings)
	case payment != nil && payment.Status == models.PaymentStatusPaid:
		return bucketPaid, decimal.NewFromFloat(link.Amount)
	default:
		return bucketInvoiced, decimal.NewFromFloat(link.Amount)
	}
}

func displayAmount(lesson models.Lesson, settings *models.TutorRateSettings) decimal.Decimal {
	res := billing.Resolve(billing.ResolveInput{
		Subject:         lesson.Subject,
		DurationMinutes: lesson.DurationMinutes,
		Combined:        lesson.SessionID != nil,
		OverrideAmount:  lesson.OverrideAmount,
		Settings:        settings,
	})
	return res.Amount
}

type familyAccumulator struct {
	parentID   int64
	parentName string

	scheduled, completed, invoiced, paid, cancelled int
	sessions                                        []uuid.UUID

	expected, billable, invoicedAmt, collected decimal.Decimal
}

func (a *familyAccumulator) add(lesson models.Lesson, bucket string, amount decimal.Decimal) {
	if lesson.SessionID != nil && lesson.Status != models.LessonStatusCancelled {
		a.sessions = append(a.sessions, *lesson.SessionID)
	}
	switch bucket {
	case bucketCancelled:
		a.cancelled++
	case bucketScheduled:
		a.scheduled++
		a.expected = a.expected.Add(amount)
	case bucketCompleted:
		a.completed++
		a.billable = a.billable.Add(amount)
		a.expected = a.expected.Add(amount)
	case bucketInvoiced:
		a.invoiced++
		a.invoicedAmt = a.invoicedAmt.Add(amount)
		a.expected = a.expected.Add(amount)
	case bucketPaid:
		a.paid++
		a.collected = a.collected.Add(amount)
		a.expected = a.expected.Add(amount)
	}
}

func (a *familyAccumulator) empty() bool {
	return a.scheduled+a.completed+a.invoiced+a.paid+a.cancelled == 0
}

func (a *familyAccumulator) summary() FamilySummary {
	return FamilySummary{
		ParentID:             a.parentID,
		ParentName:           a.parentName,
		ScheduledCount:       a.scheduled,
		CompletedCount:       a.completed,
		InvoicedCount:        a.invoiced,
		PaidCount:            a.paid,
		CancelledCount:       a.cancelled,
		CombinedSessionCount: len(lo.Uniq(a.sessions)),
		ExpectedAmount:       a.expected.InexactFloat64(),
		BillableAmount:       a.billable.InexactFloat64(),
		InvoicedAmount:       a.invoicedAmt.InexactFloat64(),
		CollectedAmount:      a.collected.InexactFloat64(),
	}
}

func (s *SummaryService) loadSettings(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error) {
	settings, err := s.settings.GetByTutorID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return settings, nil
}
