package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор. Второй открытый спор по задаче даёт common.ErrAlreadyExists.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (task_id, payment_id, initiator_id, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if err := common.Conn(ctx, r.db).QueryRowxContext(ctx, query, d.TaskID, d.PaymentID, d.InitiatorID, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: create %w", common.MapError(err))
	}
	return nil
}

// GetLatestByTask возвращает последний спор по задаче.
func (r *DisputeRepository) GetLatestByTask(ctx context.Context, taskID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := common.Conn(ctx, r.db).GetContext(ctx, &d,
		`SELECT * FROM disputes WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: get by task %w", err)
	}
	return &d, nil
}
