package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification хранит уведомление пользователя.
type Notification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Title       string     `db:"title" json:"title"`
	Body        string     `db:"body" json:"body"`
	Type        string     `db:"type" json:"type"`
	ReferenceID *uuid.UUID `db:"reference_id" json:"reference_id,omitempty"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
