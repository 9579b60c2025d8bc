package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// ErrPaymentNotFound возвращается, когда платёж не найден.
var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет escrow-платёж. Второй незавершённый платёж по ставке даёт common.ErrAlreadyExists.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (task_id, bid_id, poster_id, tasker_id, payment_intent_id,
			amount, platform_fee, tasker_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	if err := common.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		p.TaskID, p.BidID, p.PosterID, p.TaskerID, p.PaymentIntentID,
		p.Amount, p.PlatformFee, p.TaskerAmount, p.Currency, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("payment repository: create %w", common.MapError(err))
	}

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, common.Conn(ctx, r.db), "payments", id, ErrPaymentNotFound)
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, common.Conn(ctx, r.db), "payments", "payment_intent_id", intentID, ErrPaymentNotFound)
}

// FindOpenByBid возвращает незавершённый (pending или held) платёж по ставке.
func (r *PaymentRepository) FindOpenByBid(ctx context.Context, bidID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := common.Conn(ctx, r.db).GetContext(ctx, &p,
		`SELECT * FROM payments WHERE bid_id = $1 AND status = ANY($2) LIMIT 1`,
		bidID, pq.Array(openStatuses))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: find open by bid %w", err)
	}

	return &p, nil
}

// ListByTask возвращает все платежи задачи, новые первыми.
func (r *PaymentRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := common.Conn(ctx, r.db).SelectContext(ctx, &payments,
		`SELECT * FROM payments WHERE task_id = $1 ORDER BY created_at DESC`, taskID); err != nil {
		return nil, fmt.Errorf("payment repository: list by task %w", err)
	}

	return payments, nil
}

// TransitionStatus меняет статус платежа, если текущий входит в from.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, refundReason *string) (bool, error) {
	set := map[string]interface{}{"status": to}
	if refundReason != nil {
		set["refund_reason"] = *refundReason
	}

	affected, err := common.CompareAndSwap(ctx, common.Conn(ctx, r.db), "payments", id, "status", from, set)
	if err != nil {
		return false, fmt.Errorf("payment repository: transition status %w", err)
	}

	return affected == 1, nil
}

// ApplyEvent переводит платёж по событию шлюза.
// Событие старше уже применённого игнорируется, возвращается false.
func (r *PaymentRepository) ApplyEvent(ctx context.Context, id uuid.UUID, from []string, to string, eventAt time.Time) (bool, error) {
	result, err := common.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE payments SET status = $1, last_event_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = ANY($4) AND (last_event_at IS NULL OR last_event_at <= $2)
	`, to, eventAt, id, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("payment repository: apply event %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment repository: apply event rows affected %w", err)
	}

	return rowsAffected == 1, nil
}

var openStatuses = []string{models.PaymentStatusPending, models.PaymentStatusHeld}
