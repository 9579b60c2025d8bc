package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository"
)

// StripeAccountService подключает исполнителей к платёжному сервису для выплат.
type StripeAccountService struct {
	accounts StripeAccountRepository
	gateway  PaymentGateway
}

// NewStripeAccountService создаёт сервис платёжных аккаунтов.
func NewStripeAccountService(accounts StripeAccountRepository, gw PaymentGateway) *StripeAccountService {
	return &StripeAccountService{accounts: accounts, gateway: gw}
}

// Onboarding аккаунт и ссылка, по которой исполнитель завершает подключение.
type Onboarding struct {
	Account       *models.StripeAccount `json:"account"`
	OnboardingURL string                `json:"onboarding_url"`
}

// CreateStripeAccount создаёт подключённый аккаунт исполнителя и ссылку онбординга.
// Если аккаунт уже есть, выдаётся новая ссылка для существующего.
func (s *StripeAccountService) CreateStripeAccount(ctx context.Context, userID uuid.UUID, email string) (*Onboarding, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, validation("email обязателен")
	}

	existing, err := s.accounts.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		return s.onboarding(ctx, existing)
	case !errors.Is(err, repository.ErrStripeAccountNotFound):
		return nil, mapRepoError(err, "не удалось создать платёжный аккаунт")
	}

	fields := logrus.Fields{"user_id": userID}

	remote, err := s.gateway.CreateConnectedAccount(ctx, email)
	if err != nil {
		return nil, gatewayFailure(err, "не удалось создать платёжный аккаунт", fields)
	}

	account := &models.StripeAccount{
		UserID:         userID,
		AccountID:      remote.ID,
		ChargesEnabled: remote.ChargesEnabled,
		PayoutsEnabled: remote.PayoutsEnabled,
		Completed:      remote.ChargesEnabled && remote.PayoutsEnabled,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, mapRepoError(err, "не удалось сохранить платёжный аккаунт")
	}

	logger.WithFields(fields).WithField("account_id", account.AccountID).Info("stripe: создан подключённый аккаунт")
	return s.onboarding(ctx, account)
}

// RefreshOnboardingLink выдаёт новую ссылку онбординга вместо истёкшей.
func (s *StripeAccountService) RefreshOnboardingLink(ctx context.Context, userID uuid.UUID) (*Onboarding, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить платёжный аккаунт")
	}
	if account.Completed {
		return nil, conflict("подключение аккаунта уже завершено")
	}
	return s.onboarding(ctx, account)
}

// CheckStripeAccountStatus сверяет возможности аккаунта с платёжным сервисом.
func (s *StripeAccountService) CheckStripeAccountStatus(ctx context.Context, userID uuid.UUID) (*models.StripeAccount, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить платёжный аккаунт")
	}

	remote, err := s.gateway.RetrieveAccount(ctx, account.AccountID)
	if err != nil {
		return nil, gatewayFailure(err, "не удалось проверить платёжный аккаунт", logrus.Fields{"account_id": account.AccountID})
	}

	if remote.ChargesEnabled != account.ChargesEnabled || remote.PayoutsEnabled != account.PayoutsEnabled {
		if _, err := s.accounts.UpdateCapabilities(ctx, account.AccountID, remote.ChargesEnabled, remote.PayoutsEnabled); err != nil {
			return nil, mapRepoError(err, "не удалось обновить платёжный аккаунт")
		}
		account.ChargesEnabled = remote.ChargesEnabled
		account.PayoutsEnabled = remote.PayoutsEnabled
		account.Completed = remote.ChargesEnabled && remote.PayoutsEnabled
	}

	return account, nil
}

func (s *StripeAccountService) onboarding(ctx context.Context, account *models.StripeAccount) (*Onboarding, error) {
	link, err := s.gateway.CreateOnboardingLink(ctx, account.AccountID)
	if err != nil {
		return nil, gatewayFailure(err, "не удалось получить ссылку подключения", logrus.Fields{"account_id": account.AccountID})
	}
	return &Onboarding{Account: account, OnboardingURL: link}, nil
}
