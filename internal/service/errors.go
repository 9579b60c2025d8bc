package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskhub-backend/internal/repository"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// TxManager открывает транзакцию хранилища. Репозитории берут её из контекста.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier доставляет уведомления пользователям. Ошибки доставки не возвращаются.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, text, kind string, referenceID *uuid.UUID)
}

// mapRepoError переводит ошибки репозиториев в ошибки приложения.
// op описывает операцию для неожиданных ошибок ("не удалось ...").
func mapRepoError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrTaskNotFound):
		return apperror.ErrTaskNotFound
	case errors.Is(err, repository.ErrBidNotFound):
		return apperror.ErrBidNotFound
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.ErrPaymentNotFound
	case errors.Is(err, repository.ErrStripeAccountNotFound):
		return apperror.ErrStripeAccountNotFound
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.ErrDisputeNotFound
	case errors.Is(err, repository.ErrNotificationNotFound):
		return apperror.ErrNotificationNotFound
	case errors.Is(err, common.ErrAlreadyExists):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "запись уже существует")
	}
	return apperror.Internal(err, op)
}

func conflict(message string) error {
	return apperror.New(apperror.ErrCodeConflict, message)
}

func forbidden(message string) error {
	return apperror.New(apperror.ErrCodeForbidden, message)
}

func validation(message string) error {
	return apperror.New(apperror.ErrCodeValidation, message)
}
