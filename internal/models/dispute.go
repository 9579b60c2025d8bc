package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen           = "open"
	DisputeStatusUnderReview    = "under_review"
	DisputeStatusResolvedPoster = "resolved_poster"
	DisputeStatusResolvedTasker = "resolved_tasker"
	DisputeStatusCancelled      = "cancelled"
)

type Dispute struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TaskID      uuid.UUID  `db:"task_id" json:"task_id"`
	PaymentID   *uuid.UUID `db:"payment_id" json:"payment_id,omitempty"`
	InitiatorID uuid.UUID  `db:"initiator_id" json:"initiator_id"`
	Reason      string     `db:"reason" json:"reason"`
	Status      string     `db:"status" json:"status"`
	Resolution  *string    `db:"resolution" json:"resolution,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
