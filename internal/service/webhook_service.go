package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

// EventStore помнит идентификаторы уже обработанных webhook-событий.
type EventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string, ttl time.Duration) error
}

// WebhookService проверяет подпись входящих событий и передаёт их в escrow.
type WebhookService struct {
	gateway PaymentGateway
	escrow  *EscrowService
	events  EventStore
	ttl     time.Duration
}

// NewWebhookService создаёт сервис webhook-событий.
func NewWebhookService(gw PaymentGateway, escrow *EscrowService, events EventStore, ttl time.Duration) *WebhookService {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &WebhookService{gateway: gw, escrow: escrow, events: events, ttl: ttl}
}

// Verify проверяет подпись и разбирает событие. Неверная подпись даёт ошибку валидации.
func (s *WebhookService) Verify(payload []byte, signature string) (*gateway.Event, error) {
	if signature == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "отсутствует подпись webhook")
	}

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return nil, apperror.Wrap(err, apperror.ErrCodeBadRequest, "неверная подпись webhook")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось разобрать webhook")
	}
	return event, nil
}

// Process применяет событие один раз. Повторная доставка того же события пропускается.
// Ошибка означает, что платёжный сервис должен повторить доставку.
func (s *WebhookService) Process(ctx context.Context, event *gateway.Event) error {
	fields := logrus.Fields{"event_id": event.ID, "event_kind": event.Kind}

	if seen, err := s.events.Seen(ctx, event.ID); err != nil {
		// без хранилища полагаемся на идемпотентность самих переходов
		logger.WithFields(fields).WithError(err).Warn("webhook: хранилище событий недоступно")
	} else if seen {
		logger.WithFields(fields).Debug("webhook: событие уже обработано")
		return nil
	}

	if err := s.escrow.HandleWebhookEvent(ctx, event); err != nil {
		logger.WithFields(fields).WithError(err).Error("webhook: не удалось обработать событие")
		return err
	}

	if err := s.events.Remember(ctx, event.ID, s.ttl); err != nil {
		logger.WithFields(fields).WithError(err).Warn("webhook: не удалось запомнить событие")
	}

	logger.WithFields(fields).Info("webhook: событие обработано")
	return nil
}
