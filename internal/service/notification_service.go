package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/models"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Broadcaster доставляет событие открытым WebSocket-подключениям пользователя.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// NotificationService сохраняет уведомления и отправляет их в реальном времени.
type NotificationService struct {
	repo NotificationRepository
	hub  Broadcaster
}

// NewNotificationService создаёт новый сервис уведомлений. hub может быть nil.
func NewNotificationService(repo NotificationRepository, hub Broadcaster) *NotificationService {
	return &NotificationService{repo: repo, hub: hub}
}

// Notify сохраняет уведомление и отправляет его по WebSocket.
// Сбой доставки не влияет на уже выполненную операцию и только логируется.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, title, text, kind string, referenceID *uuid.UUID) {
	notification := &models.Notification{
		UserID:      userID,
		Title:       title,
		Body:        text,
		Type:        kind,
		ReferenceID: referenceID,
	}

	fields := logrus.Fields{"user_id": userID, "type": kind}

	if err := s.repo.Create(ctx, notification); err != nil {
		logger.WithFields(fields).WithError(err).Warn("notification: не удалось сохранить уведомление")
		return
	}

	if s.hub == nil {
		return
	}
	if err := s.hub.BroadcastToUser(userID, kind, notification); err != nil {
		logger.WithFields(fields).WithError(err).Warn("notification: не удалось отправить уведомление")
	}
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.repo.List(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить уведомления")
	}
	return notifications, nil
}

// MarkAsRead отмечает уведомление пользователя как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return mapRepoError(s.repo.MarkAsRead(ctx, id, userID), "не удалось отметить уведомление")
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return mapRepoError(s.repo.MarkAllAsRead(ctx, userID), "не удалось отметить уведомления")
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, mapRepoError(err, "не удалось посчитать уведомления")
	}
	return count, nil
}
