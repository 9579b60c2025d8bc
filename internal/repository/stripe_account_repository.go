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

// ErrStripeAccountNotFound возвращается, когда у пользователя нет платёжного аккаунта.
var ErrStripeAccountNotFound = errors.New("stripe account not found")

// StripeAccountRepository хранит подключённые аккаунты исполнителей.
type StripeAccountRepository struct {
	db *sqlx.DB
}

func NewStripeAccountRepository(db *sqlx.DB) *StripeAccountRepository {
	return &StripeAccountRepository{db: db}
}

func (r *StripeAccountRepository) Create(ctx context.Context, account *models.StripeAccount) error {
	query := `
		INSERT INTO stripe_accounts (user_id, account_id, completed, charges_enabled, payouts_enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if err := common.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		account.UserID, account.AccountID, account.Completed, account.ChargesEnabled, account.PayoutsEnabled,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return fmt.Errorf("stripe account repository: create %w", common.MapError(err))
	}

	return nil
}

func (r *StripeAccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.StripeAccount, error) {
	return common.GetByField[models.StripeAccount](ctx, common.Conn(ctx, r.db), "stripe_accounts", "user_id", userID, ErrStripeAccountNotFound)
}

func (r *StripeAccountRepository) GetByAccountID(ctx context.Context, accountID string) (*models.StripeAccount, error) {
	return common.GetByField[models.StripeAccount](ctx, common.Conn(ctx, r.db), "stripe_accounts", "account_id", accountID, ErrStripeAccountNotFound)
}

// UpdateCapabilities сохраняет флаги аккаунта. Возвращает false, если аккаунт неизвестен.
func (r *StripeAccountRepository) UpdateCapabilities(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled bool) (bool, error) {
	result, err := common.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE stripe_accounts
		SET charges_enabled = $1, payouts_enabled = $2, completed = $1 AND $2, updated_at = NOW()
		WHERE account_id = $3
	`, chargesEnabled, payoutsEnabled, accountID)
	if err != nil {
		return false, fmt.Errorf("stripe account repository: update capabilities %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stripe account repository: update capabilities rows affected %w", err)
	}

	return rowsAffected == 1, nil
}
