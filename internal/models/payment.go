package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment представляет escrow-платёж по принятой ставке.
type Payment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	TaskID          uuid.UUID  `db:"task_id" json:"task_id"`
	BidID           uuid.UUID  `db:"bid_id" json:"bid_id"`
	PosterID        uuid.UUID  `db:"poster_id" json:"poster_id"`
	TaskerID        uuid.UUID  `db:"tasker_id" json:"tasker_id"`
	PaymentIntentID string     `db:"payment_intent_id" json:"payment_intent_id"`
	Amount          float64    `db:"amount" json:"amount"`
	PlatformFee     float64    `db:"platform_fee" json:"platform_fee"`
	TaskerAmount    float64    `db:"tasker_amount" json:"tasker_amount"`
	Currency        string     `db:"currency" json:"currency"`
	Status          string     `db:"status" json:"status"`
	RefundReason    *string    `db:"refund_reason" json:"refund_reason,omitempty"`
	LastEventAt     *time.Time `db:"last_event_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen сообщает, что платёж ещё не достиг конечного статуса.
func (p *Payment) IsOpen() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusHeld
}

// StripeAccount хранит подключённый аккаунт исполнителя для выплат.
type StripeAccount struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	Completed      bool      `db:"completed" json:"completed"`
	ChargesEnabled bool      `db:"charges_enabled" json:"charges_enabled"`
	PayoutsEnabled bool      `db:"payouts_enabled" json:"payouts_enabled"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
