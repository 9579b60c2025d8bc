package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskhub-backend/internal/domain/valueobject"
	"github.com/ignatzorin/taskhub-backend/internal/models"
)

// DisputeOpener граница подсистемы споров.
type DisputeOpener interface {
	OpenDispute(ctx context.Context, taskID, initiatorID uuid.UUID, claim string) (*DisputeHandle, error)
}

// TaskService управляет статусами задачи и вызывает escrow на нужных переходах.
type TaskService struct {
	tx       TxManager
	tasks    TaskRepository
	payments PaymentRepository
	escrow   *EscrowService
	disputes DisputeOpener
	notifier Notifier

	// allowResubmit разрешает повторную сдачу работы из статуса under_review.
	allowResubmit bool
}

// NewTaskService создаёт сервис задач.
func NewTaskService(tx TxManager, tasks TaskRepository, payments PaymentRepository, escrow *EscrowService, disputes DisputeOpener, notifier Notifier, allowResubmit bool) *TaskService {
	return &TaskService{
		tx:            tx,
		tasks:         tasks,
		payments:      payments,
		escrow:        escrow,
		disputes:      disputes,
		notifier:      notifier,
		allowResubmit: allowResubmit,
	}
}

// CreateTaskInput описывает входные данные задачи.
type CreateTaskInput struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	Budget      float64
}

// CreateTask публикует новую открытую задачу.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validation("название задачи обязательно")
	}
	if in.Budget <= 0 {
		return nil, validation("бюджет должен быть больше нуля")
	}

	task := &models.Task{
		OwnerID:     in.OwnerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Budget:      in.Budget,
		Status:      models.TaskStatusOpen,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, mapRepoError(err, "не удалось создать задачу")
	}
	return task, nil
}

// GetTask возвращает задачу по идентификатору.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить задачу")
	}
	return task, nil
}

// ListPosterTasks возвращает задачи заказчика.
func (s *TaskService) ListPosterTasks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	tasks, err := s.tasks.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить задачи")
	}
	return tasks, nil
}

// SubmitDelivery отправляет работу заказчику на проверку.
func (s *TaskService) SubmitDelivery(ctx context.Context, taskID, taskerID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось сдать работу")
	}
	if !task.IsAssignedTo(taskerID) {
		return nil, forbidden("сдать работу может только назначенный исполнитель")
	}

	from := []string{models.TaskStatusInProgress}
	if s.allowResubmit {
		from = append(from, models.TaskStatusUnderReview)
	}
	if !containsStatus(from, task.Status) {
		return nil, conflict(fmt.Sprintf("нельзя сдать работу по задаче в статусе %s", task.Status))
	}

	ok, err := s.tasks.TransitionStatus(ctx, task.ID, from, models.TaskStatusUnderReview, false)
	if err != nil {
		return nil, mapRepoError(err, "не удалось сдать работу")
	}
	if !ok {
		return nil, conflict("статус задачи изменился, повторите попытку")
	}
	task.Status = models.TaskStatusUnderReview

	s.notifier.Notify(ctx, task.OwnerID,
		"Работа сдана",
		"Исполнитель сдал работу по задаче «"+task.Title+"»",
		models.NotificationTypeDeliverySubmitted, &task.ID)

	return task, nil
}

// CompleteTaskResult итог завершения задачи.
type CompleteTaskResult struct {
	Task    *models.Task    `json:"task"`
	Payment *models.Payment `json:"payment"`
}

// CompleteTask принимает работу и выплачивает удержанные средства исполнителю.
// При ошибке шлюза задача остаётся на проверке.
func (s *TaskService) CompleteTask(ctx context.Context, taskID, posterID uuid.UUID) (*CompleteTaskResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось завершить задачу")
	}
	if task.OwnerID != posterID {
		return nil, forbidden("завершить задачу может только заказчик")
	}
	if task.Status != models.TaskStatusUnderReview {
		return nil, conflict(fmt.Sprintf("завершить можно только задачу на проверке, текущий статус: %s", task.Status))
	}
	if task.PaymentIntentID == nil || *task.PaymentIntentID == "" {
		return nil, validation("у задачи нет платежа")
	}

	payment, err := s.releasablePayment(ctx, task)
	if err != nil {
		return nil, err
	}

	// Задача переводится до списания: её строка заблокирована до коммита,
	// параллельный спор или отмена получат конфликт до обращения к шлюзу.
	var released *models.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.tasks.TransitionStatus(ctx, task.ID, []string{models.TaskStatusUnderReview}, models.TaskStatusCompleted, false)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("статус задачи изменился, повторите попытку")
		}

		released, err = s.escrow.ReleaseEscrowPayment(ctx, payment.ID, posterID)
		return err
	})
	if err != nil {
		return nil, mapRepoError(err, "не удалось завершить задачу")
	}
	task.Status = models.TaskStatusCompleted

	if task.AssignedTo != nil {
		s.notifier.Notify(ctx, *task.AssignedTo,
			"Задача завершена",
			"Заказчик принял работу по задаче «"+task.Title+"», средства переведены",
			models.NotificationTypeTaskCompleted, &task.ID)
	}

	return &CompleteTaskResult{Task: task, Payment: released}, nil
}

// releasablePayment находит удержанный платёж задачи.
// Ожидающий платёж сперва сверяется со шлюзом: webhook мог ещё не прийти.
func (s *TaskService) releasablePayment(ctx context.Context, task *models.Task) (*models.Payment, error) {
	payments, err := s.payments.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось завершить задачу")
	}

	var pending *models.Payment
	for i := range payments {
		p := &payments[i]
		if p.PaymentIntentID != *task.PaymentIntentID {
			continue
		}
		switch p.Status {
		case models.PaymentStatusHeld:
			return p, nil
		case models.PaymentStatusPending:
			pending = p
		}
	}

	if pending != nil {
		reconciled, err := s.escrow.ReconcilePending(ctx, pending)
		if err != nil {
			return nil, err
		}
		if reconciled.Status == models.PaymentStatusHeld {
			return reconciled, nil
		}
	}

	return nil, conflict("нет платежа, доступного для выплаты: дождитесь подтверждения оплаты")
}

// CancelTaskResult итог отмены задачи.
type CancelTaskResult struct {
	Task     *models.Task     `json:"task"`
	Refunded []models.Payment `json:"refunded,omitempty"`
	Dispute  *DisputeHandle   `json:"dispute,omitempty"`
}

// CancelTask отменяет задачу с возвратом средств.
// Если работа уже сдана, вместо отмены открывается спор.
func (s *TaskService) CancelTask(ctx context.Context, taskID, posterID uuid.UUID, reason string) (*CancelTaskResult, error) {
	reason = strings.TrimSpace(reason)

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось отменить задачу")
	}
	if task.OwnerID != posterID {
		return nil, forbidden("отменить задачу может только заказчик")
	}
	if valueobject.TaskStatus(task.Status).IsTerminal() {
		return nil, conflict(fmt.Sprintf("задачу в статусе %s нельзя отменить", task.Status))
	}

	if task.Status == models.TaskStatusUnderReview {
		return s.escalateToDispute(ctx, task, posterID, reason)
	}

	if reason == "" {
		reason = "задача отменена заказчиком"
	}
	assignee := task.AssignedTo

	// задача переводится до обращения к шлюзу, как и при завершении
	var refunded []models.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.tasks.TransitionStatus(ctx, task.ID,
			[]string{models.TaskStatusOpen, models.TaskStatusInProgress}, models.TaskStatusCancelled, true)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("статус задачи изменился, повторите попытку")
		}

		payments, err := s.payments.ListByTask(ctx, task.ID)
		if err != nil {
			return err
		}

		for i := range payments {
			if !payments[i].IsOpen() {
				continue
			}
			p, err := s.escrow.RefundEscrowPayment(ctx, payments[i].ID, reason)
			if err != nil {
				return err
			}
			refunded = append(refunded, *p)
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, "не удалось отменить задачу")
	}

	task.Status = models.TaskStatusCancelled
	task.AssignedTo = nil

	if assignee != nil {
		s.notifier.Notify(ctx, *assignee,
			"Задача отменена",
			"Заказчик отменил задачу «"+task.Title+"»: "+reason,
			models.NotificationTypeTaskCancelled, &task.ID)
	}

	return &CancelTaskResult{Task: task, Refunded: refunded}, nil
}

// escalateToDispute переводит сданную задачу в спор. Возврат средств здесь не делается.
func (s *TaskService) escalateToDispute(ctx context.Context, task *models.Task, posterID uuid.UUID, claim string) (*CancelTaskResult, error) {
	if claim == "" {
		return nil, validation("работа уже сдана: укажите причину, она станет претензией в споре")
	}

	var handle *DisputeHandle
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.tasks.TransitionStatus(ctx, task.ID, []string{models.TaskStatusUnderReview}, models.TaskStatusDisputed, false)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("статус задачи изменился, повторите попытку")
		}

		handle, err = s.disputes.OpenDispute(ctx, task.ID, posterID, claim)
		return err
	})
	if err != nil {
		return nil, mapRepoError(err, "не удалось открыть спор")
	}
	task.Status = models.TaskStatusDisputed

	if task.AssignedTo != nil {
		s.notifier.Notify(ctx, *task.AssignedTo,
			"Открыт спор",
			"Заказчик оспорил сданную работу по задаче «"+task.Title+"»: "+claim,
			models.NotificationTypeTaskDisputed, &task.ID)
	}

	return &CancelTaskResult{Task: task, Dispute: handle}, nil
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
