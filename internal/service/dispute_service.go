package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// DisputeRepository описывает хранилище споров.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetLatestByTask(ctx context.Context, taskID uuid.UUID) (*models.Dispute, error)
}

// DisputeHandle ссылка на открытый спор, которую получает жизненный цикл задачи.
type DisputeHandle struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DisputeService открывает споры. Разбор спора ведёт отдельная подсистема.
type DisputeService struct {
	disputes DisputeRepository
	tasks    TaskRepository
	payments PaymentRepository
}

func NewDisputeService(disputes DisputeRepository, tasks TaskRepository, payments PaymentRepository) *DisputeService {
	return &DisputeService{disputes: disputes, tasks: tasks, payments: payments}
}

// OpenDispute открывает спор по задаче с претензией инициатора.
// К спору привязывается незавершённый платёж задачи, если он есть.
func (s *DisputeService) OpenDispute(ctx context.Context, taskID, initiatorID uuid.UUID, claim string) (*DisputeHandle, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, validation("укажите причину спора")
	}

	d := &models.Dispute{
		TaskID:      taskID,
		InitiatorID: initiatorID,
		Reason:      claim,
		Status:      models.DisputeStatusOpen,
	}

	payments, err := s.payments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось открыть спор")
	}
	for i := range payments {
		if payments[i].IsOpen() {
			d.PaymentID = &payments[i].ID
			break
		}
	}

	if err := s.disputes.Create(ctx, d); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, conflict("по задаче уже открыт спор")
		}
		return nil, mapRepoError(err, "не удалось открыть спор")
	}

	return &DisputeHandle{ID: d.ID, TaskID: d.TaskID, Status: d.Status, CreatedAt: d.CreatedAt}, nil
}

// GetTaskDispute возвращает последний спор по задаче её участнику.
func (s *DisputeService) GetTaskDispute(ctx context.Context, taskID, userID uuid.UUID) (*models.Dispute, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить спор")
	}
	if task.OwnerID != userID && !task.IsAssignedTo(userID) {
		return nil, forbidden("спор доступен только участникам задачи")
	}

	d, err := s.disputes.GetLatestByTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить спор")
	}
	return d, nil
}
