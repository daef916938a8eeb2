package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

const paymentColumns = `id, parent_id, billing_month, amount_due, amount_paid, status, paid_at, notes, created_at, updated_at`

type CreatePaymentInput struct {
	ParentID     int64
	BillingMonth time.Time
	AmountDue    float64
	Notes        *string
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.ParentID,
		&payment.BillingMonth,
		&payment.AmountDue,
		&payment.AmountPaid,
		&payment.Status,
		&payment.PaidAt,
		&payment.Notes,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (parent_id, billing_month, amount_due, amount_paid, status, notes)
		VALUES ($1, $2, $3, 0, 'unpaid', $4)
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, input.ParentID, input.BillingMonth, input.AmountDue, input.Notes))
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, paymentID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}

func (r *PaymentRepository) GetByParentMonth(ctx context.Context, parentID int64, month time.Time) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE parent_id = $1 AND billing_month = $2`
	return scanPayment(r.db.QueryRow(ctx, query, parentID, month))
}

func (r *PaymentRepository) ListByMonth(ctx context.Context, month time.Time) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE billing_month = $1 ORDER BY parent_id ASC, id ASC`
	rows, err := r.db.Query(ctx, query, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) UpdateReceived(ctx context.Context, paymentID int64, amountPaid float64, status string, paidAt *time.Time, notes *string) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET amount_paid = $2, status = $3, paid_at = $4, notes = COALESCE($5, notes), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, amountPaid, status, paidAt, notes))
}

func (r *PaymentRepository) Delete(ctx context.Context, paymentID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PaymentRepository) CreateLesson(ctx context.Context, paymentID, lessonID int64, amount float64) (*models.PaymentLesson, error) {
	query := `
		INSERT INTO payment_lessons (payment_id, lesson_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, payment_id, lesson_id, amount, created_at
	`
	var link models.PaymentLesson
	err := r.db.QueryRow(ctx, query, paymentID, lessonID, amount).Scan(
		&link.ID,
		&link.PaymentID,
		&link.LessonID,
		&link.Amount,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *PaymentRepository) ListLessonsByPayment(ctx context.Context, paymentID int64) ([]models.PaymentLesson, error) {
	query := `
		SELECT id, payment_id, lesson_id, amount, created_at
		FROM payment_lessons
		WHERE payment_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	return collectPaymentLessons(rows)
}

// ListLessonLinks maps lesson id -> link for the given lessons. Lessons that
// were never invoiced are simply absent from the map.
func (r *PaymentRepository) ListLessonLinks(ctx context.Context, lessonIDs []int64) (map[int64]models.PaymentLesson, error) {
	links := make(map[int64]models.PaymentLesson, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return links, nil
	}

	query := `
		SELECT id, payment_id, lesson_id, amount, created_at
		FROM payment_lessons
		WHERE lesson_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, lessonIDs)
	if err != nil {
		return nil, err
	}
	collected, err := collectPaymentLessons(rows)
	if err != nil {
		return nil, err
	}
	for _, link := range collected {
		links[link.LessonID] = link
	}
	return links, nil
}

func (r *PaymentRepository) ListByIDs(ctx context.Context, paymentIDs []int64) (map[int64]models.Payment, error) {
	payments := make(map[int64]models.Payment, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return payments, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, paymentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments[payment.ID] = *payment
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func collectPaymentLessons(rows pgx.Rows) ([]models.PaymentLesson, error) {
	defer rows.Close()
	links := make([]models.PaymentLesson, 0)
	for rows.Next() {
		var link models.PaymentLesson
		if err := rows.Scan(
			&link.ID,
			&link.PaymentID,
			&link.LessonID,
			&link.Amount,
			&link.CreatedAt,
		); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}
