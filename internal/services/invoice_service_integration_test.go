package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

// integrationTestPool connects to TEST_DB_URL (schema already migrated) or
// skips the test when no database is configured.
func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testDBOnce.Do(func() {
		_ = godotenv.Load()
		url := os.Getenv("TEST_DB_URL")
		if url == "" {
			return
		}
		testDBPool, testDBErr = pgxpool.New(context.Background(), url)
	})
	if testDBErr != nil {
		t.Fatalf("connect test database: %v", testDBErr)
	}
	if testDBPool == nil {
		t.Skip("TEST_DB_URL not set; skipping integration test")
	}
	return testDBPool
}

func newIntegrationInvoiceService(pool *pgxpool.Pool) *InvoiceService {
	return NewInvoiceService(
		pool,
		repository.NewPaymentRepository(pool),
		repository.NewLessonRepository(pool),
		repository.NewFamilyRepository(pool),
		repository.NewRateSettingsRepository(pool),
		time.UTC,
	)
}

func createTestFamily(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (parentID, studentID int64) {
	t.Helper()
	name := fmt.Sprintf("it-family-%d", time.Now().UnixNano())
	if err := pool.QueryRow(ctx,
		`INSERT INTO parents (name) VALUES ($1) RETURNING id`, name,
	).Scan(&parentID); err != nil {
		t.Fatalf("insert parent: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO students (parent_id, name) VALUES ($1, $2) RETURNING id`, parentID, name+"-kid",
	).Scan(&studentID); err != nil {
		t.Fatalf("insert student: %v", err)
	}
	return parentID, studentID
}

func createCompletedLesson(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tutorID, studentID int64, at time.Time, durationMin int) int64 {
	t.Helper()
	var lessonID int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO lessons (student_id, tutor_id, subject, scheduled_at, duration_min, status)
		VALUES ($1, $2, 'math', $3, $4, 'completed')
		RETURNING id
	`, studentID, tutorID, at, durationMin).Scan(&lessonID); err != nil {
		t.Fatalf("insert lesson: %v", err)
	}
	return lessonID
}

func configureMathRate(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tutorID int64) {
	t.Helper()
	settingsRepo := repository.NewRateSettingsRepository(pool)
	_, err := settingsRepo.Upsert(ctx, &models.TutorRateSettings{
		TutorID:        tutorID,
		DefaultRate:    45,
		DefaultBaseMin: 60,
		SubjectRates: map[string]models.SubjectRate{
			"math": {Rate: 35, BaseDurationMin: 30},
		},
	})
	if err != nil {
		t.Fatalf("upsert settings: %v", err)
	}
}

func cleanupTestFamily(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tutorID, parentID int64) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		DELETE FROM payment_lessons WHERE payment_id IN (SELECT id FROM payments WHERE parent_id = $1)
	`, parentID); err != nil {
		t.Errorf("cleanup payment_lessons: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM payments WHERE parent_id = $1`, parentID); err != nil {
		t.Errorf("cleanup payments: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		DELETE FROM lessons WHERE student_id IN (SELECT id FROM students WHERE parent_id = $1)
	`, parentID); err != nil {
		t.Errorf("cleanup lessons: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM students WHERE parent_id = $1`, parentID); err != nil {
		t.Errorf("cleanup students: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM parents WHERE id = $1`, parentID); err != nil {
		t.Errorf("cleanup parents: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM tutor_rate_settings WHERE tutor_id = $1`, tutorID); err != nil {
		t.Errorf("cleanup settings: %v", err)
	}
}

func TestInvoiceGenerateSingleLessonAmount(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationInvoiceService(pool)

	tutorID := time.Now().UnixNano()
	parentID, studentID := createTestFamily(t, ctx, pool)
	t.Cleanup(func() { cleanupTestFamily(t, ctx, pool, tutorID, parentID) })

	configureMathRate(t, ctx, pool, tutorID)
	month := time.Date(2030, time.March, 1, 0, 0, 0, 0, time.UTC)
	createCompletedLesson(t, ctx, pool, tutorID, studentID, month.AddDate(0, 0, 9).Add(15*time.Hour), 60)

	detail, err := service.Generate(ctx, tutorID, parentID, month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Math at $35/30min for 60 minutes.
	if detail.AmountDue != 70 {
		t.Fatalf("expected amount_due 70.00, got %.2f", detail.AmountDue)
	}
	if detail.Status != models.PaymentStatusUnpaid || detail.AmountPaid != 0 {
		t.Fatalf("expected fresh unpaid payment, got %+v", detail.Payment)
	}
	if len(detail.Lessons) != 1 || detail.Lessons[0].Amount != 70 {
		t.Fatalf("expected one 70.00 link, got %+v", detail.Lessons)
	}
}

func TestInvoiceGenerateRejectsSecondRun(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationInvoiceService(pool)

	tutorID := time.Now().UnixNano()
	parentID, studentID := createTestFamily(t, ctx, pool)
	t.Cleanup(func() { cleanupTestFamily(t, ctx, pool, tutorID, parentID) })

	configureMathRate(t, ctx, pool, tutorID)
	month := time.Date(2030, time.April, 1, 0, 0, 0, 0, time.UTC)
	createCompletedLesson(t, ctx, pool, tutorID, studentID, month.AddDate(0, 0, 4).Add(10*time.Hour), 30)

	if _, err := service.Generate(ctx, tutorID, parentID, month); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if _, err := service.Generate(ctx, tutorID, parentID, month); !errors.Is(err, ErrAlreadyInvoiced) {
		t.Fatalf("second Generate: expected ErrAlreadyInvoiced, got %v", err)
	}

	var paymentCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE parent_id = $1`, parentID,
	).Scan(&paymentCount); err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if paymentCount != 1 {
		t.Fatalf("expected exactly 1 payment, got %d", paymentCount)
	}
}

func TestInvoiceGenerateExcludesCancelledAndBilled(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationInvoiceService(pool)

	tutorID := time.Now().UnixNano()
	parentID, studentID := createTestFamily(t, ctx, pool)
	t.Cleanup(func() { cleanupTestFamily(t, ctx, pool, tutorID, parentID) })

	configureMathRate(t, ctx, pool, tutorID)
	month := time.Date(2030, time.May, 1, 0, 0, 0, 0, time.UTC)
	createCompletedLesson(t, ctx, pool, tutorID, studentID, month.AddDate(0, 0, 1).Add(9*time.Hour), 30)
	if _, err := pool.Exec(ctx, `
		INSERT INTO lessons (student_id, tutor_id, subject, scheduled_at, duration_min, status)
		VALUES ($1, $2, 'math', $3, 60, 'cancelled')
	`, studentID, tutorID, month.AddDate(0, 0, 2).Add(9*time.Hour)); err != nil {
		t.Fatalf("insert cancelled lesson: %v", err)
	}

	detail, err := service.Generate(ctx, tutorID, parentID, month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(detail.Lessons) != 1 {
		t.Fatalf("cancelled lesson must not be billed; links: %+v", detail.Lessons)
	}
	if detail.AmountDue != 35 {
		t.Fatalf("expected 35.00 for the single 30min lesson, got %.2f", detail.AmountDue)
	}

	// The following month has nothing new to bill.
	if _, err := service.Generate(ctx, tutorID, parentID, month.AddDate(0, 1, 0)); !errors.Is(err, ErrNothingToInvoice) {
		t.Fatalf("expected ErrNothingToInvoice, got %v", err)
	}
}

func TestInvoiceGenerateConcurrentRunsBillAtMostOnce(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationInvoiceService(pool)

	tutorID := time.Now().UnixNano()
	parentID, studentID := createTestFamily(t, ctx, pool)
	t.Cleanup(func() { cleanupTestFamily(t, ctx, pool, tutorID, parentID) })

	configureMathRate(t, ctx, pool, tutorID)
	month := time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)
	lessonID := createCompletedLesson(t, ctx, pool, tutorID, studentID, month.AddDate(0, 0, 10).Add(14*time.Hour), 60)

	const runs = 4
	errs := make(chan error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Generate(ctx, tutorID, parentID, month)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrAlreadyInvoiced) && !errors.Is(err, ErrNothingToInvoice) {
			t.Fatalf("unexpected error from concurrent run: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 successful run, got %d", succeeded)
	}

	var linkCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_lessons WHERE lesson_id = $1`, lessonID,
	).Scan(&linkCount); err != nil {
		t.Fatalf("count links: %v", err)
	}
	if linkCount != 1 {
		t.Fatalf("lesson billed %d times; at-most-once violated", linkCount)
	}
}

func TestRecordPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationInvoiceService(pool)

	tutorID := time.Now().UnixNano()
	parentID, studentID := createTestFamily(t, ctx, pool)
	t.Cleanup(func() { cleanupTestFamily(t, ctx, pool, tutorID, parentID) })

	configureMathRate(t, ctx, pool, tutorID)
	month := time.Date(2030, time.July, 1, 0, 0, 0, 0, time.UTC)
	createCompletedLesson(t, ctx, pool, tutorID, studentID, month.AddDate(0, 0, 3).Add(13*time.Hour), 60)

	detail, err := service.Generate(ctx, tutorID, parentID, month)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	partial, err := service.RecordPayment(ctx, detail.ID, 30, nil, nil)
	if err != nil {
		t.Fatalf("RecordPayment partial: %v", err)
	}
	if partial.Status != models.PaymentStatusPartial || partial.AmountPaid != 30 {
		t.Fatalf("expected partial 30, got %+v", partial)
	}

	paid, err := service.RecordPayment(ctx, detail.ID, 40, nil, nil)
	if err != nil {
		t.Fatalf("RecordPayment final: %v", err)
	}
	if paid.Status != models.PaymentStatusPaid || paid.PaidAt == nil {
		t.Fatalf("expected settled payment with paid_at, got %+v", paid)
	}

	if _, err := service.RecordPayment(ctx, detail.ID, 1, nil, nil); !errors.Is(err, ErrPaymentAlreadySettled) {
		t.Fatalf("expected ErrPaymentAlreadySettled, got %v", err)
	}
}
