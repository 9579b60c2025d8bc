package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// ErrBidNotFound возвращается, когда ставка не найдена.
var ErrBidNotFound = errors.New("bid not found")

// BidRepository отвечает за работу со ставками.
type BidRepository struct {
	db *sqlx.DB
}

// NewBidRepository создаёт экземпляр репозитория.
func NewBidRepository(db *sqlx.DB) *BidRepository {
	return &BidRepository{db: db}
}

// Create сохраняет ставку. Повторная ставка того же исполнителя даёт common.ErrAlreadyExists.
func (r *BidRepository) Create(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (task_id, tasker_id, amount, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if err := common.Conn(ctx, r.db).QueryRowxContext(
		ctx,
		query,
		bid.TaskID,
		bid.TaskerID,
		bid.Amount,
		bid.Message,
		bid.Status,
	).Scan(&bid.ID, &bid.CreatedAt, &bid.UpdatedAt); err != nil {
		return fmt.Errorf("bid repository: create %w", common.MapError(err))
	}

	return nil
}

// GetByID возвращает ставку по идентификатору.
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return common.GetByID[models.Bid](ctx, common.Conn(ctx, r.db), "bids", id, ErrBidNotFound)
}

// ListByTask возвращает ставки по задаче.
func (r *BidRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := common.Conn(ctx, r.db).SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE task_id = $1 ORDER BY created_at ASC`, taskID); err != nil {
		return nil, fmt.Errorf("bid repository: list by task %w", err)
	}

	return bids, nil
}

// UpdatePending меняет сумму и сообщение ставки, пока она в статусе pending.
func (r *BidRepository) UpdatePending(ctx context.Context, id uuid.UUID, amount float64, message string) (bool, error) {
	affected, err := common.CompareAndSwap(ctx, common.Conn(ctx, r.db), "bids", id, "status",
		[]string{models.BidStatusPending},
		map[string]interface{}{"amount": amount, "message": message},
	)
	if err != nil {
		return false, fmt.Errorf("bid repository: update %w", err)
	}

	return affected == 1, nil
}

// DeletePending удаляет ставку в статусе pending.
func (r *BidRepository) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := common.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM bids WHERE id = $1 AND status = $2`, id, models.BidStatusPending)
	if err != nil {
		return false, fmt.Errorf("bid repository: delete %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bid repository: delete rows affected %w", err)
	}

	return rowsAffected == 1, nil
}

// TransitionStatus меняет статус ставки, если текущий входит в from.
func (r *BidRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	affected, err := common.CompareAndSwap(ctx, common.Conn(ctx, r.db), "bids", id, "status", from,
		map[string]interface{}{"status": to})
	if err != nil {
		return false, fmt.Errorf("bid repository: transition status %w", err)
	}

	return affected == 1, nil
}

// RejectSiblings отклоняет все ожидающие ставки задачи, кроме принятой.
func (r *BidRepository) RejectSiblings(ctx context.Context, taskID, acceptedBidID uuid.UUID) (int64, error) {
	result, err := common.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE bids SET status = $1, updated_at = NOW()
		WHERE task_id = $2 AND id <> $3 AND status = $4
	`, models.BidStatusRejected, taskID, acceptedBidID, models.BidStatusPending)
	if err != nil {
		return 0, fmt.Errorf("bid repository: reject siblings %w", err)
	}

	return result.RowsAffected()
}
