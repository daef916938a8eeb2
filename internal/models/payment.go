package models

import "time"

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

type Payment struct {
	ID           int64      `json:"id"`
	ParentID     int64      `json:"parent_id"`
	BillingMonth time.Time  `json:"billing_month"`
	AmountDue    float64    `json:"amount_due"`
	AmountPaid   float64    `json:"amount_paid"`
	Status       string     `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PaymentLesson links an invoiced lesson to its payment with the amount frozen
// at invoicing time. A lesson appears in at most one link, ever; the table
// enforces this with a unique constraint on lesson_id.
type PaymentLesson struct {
	ID        int64     `json:"id"`
	PaymentID int64     `json:"payment_id"`
	LessonID  int64     `json:"lesson_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentDetail struct {
	Payment
	Lessons []PaymentLesson `json:"lessons"`
}
