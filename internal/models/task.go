package models

import (
	"time"

	"github.com/google/uuid"
)

// Task описывает задачу, размещённую заказчиком.
type Task struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OwnerID         uuid.UUID  `db:"owner_id" json:"owner_id"`
	AssignedTo      *uuid.UUID `db:"assigned_to" json:"assigned_to,omitempty"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	Budget          float64    `db:"budget" json:"budget"`
	Status          string     `db:"status" json:"status"`
	PaymentIntentID *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAssignedTo проверяет, назначена ли задача указанному исполнителю.
func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}
