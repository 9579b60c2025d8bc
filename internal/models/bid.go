package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid представляет ставку исполнителя на задачу.
type Bid struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TaskID    uuid.UUID `db:"task_id" json:"task_id"`
	TaskerID  uuid.UUID `db:"tasker_id" json:"tasker_id"`
	Amount    float64   `db:"amount" json:"amount"`
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
