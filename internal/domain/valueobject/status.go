package valueobject

import (
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

type TaskStatus string

const (
	TaskStatusOpen        TaskStatus = models.TaskStatusOpen
	TaskStatusInProgress  TaskStatus = models.TaskStatusInProgress
	TaskStatusUnderReview TaskStatus = models.TaskStatusUnderReview
	TaskStatusCompleted   TaskStatus = models.TaskStatusCompleted
	TaskStatusCancelled   TaskStatus = models.TaskStatusCancelled
	TaskStatusDisputed    TaskStatus = models.TaskStatusDisputed
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusOpen:        {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress:  {TaskStatusUnderReview, TaskStatusCancelled},
	TaskStatusUnderReview: {TaskStatusCompleted, TaskStatusDisputed},
	TaskStatusCompleted:   {},
	TaskStatusCancelled:   {},
	TaskStatusDisputed:    {},
}

func (s TaskStatus) IsValid() bool {
	_, ok := taskTransitions[s]
	return ok
}

// IsTerminal сообщает, что задача больше не меняет статус в рамках escrow.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled || s == TaskStatusDisputed
}

// RequiresAssignee сообщает, должен ли у задачи в этом статусе быть исполнитель.
func (s TaskStatus) RequiresAssignee() bool {
	_, ok := models.AssignedTaskStatuses[string(s)]
	return ok
}

func (s TaskStatus) CanTransitionTo(newStatus TaskStatus) bool {
	return contains(taskTransitions[s], newStatus)
}

func NewTaskStatus(status string) (TaskStatus, error) {
	s := TaskStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус задачи")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = models.PaymentStatusPending
	PaymentStatusHeld      PaymentStatus = models.PaymentStatusHeld
	PaymentStatusReleased  PaymentStatus = models.PaymentStatusReleased
	PaymentStatusRefunded  PaymentStatus = models.PaymentStatusRefunded
	PaymentStatusFailed    PaymentStatus = models.PaymentStatusFailed
	PaymentStatusCancelled PaymentStatus = models.PaymentStatusCancelled
)

// Платёж движется только вперёд: возврата в pending нет.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusHeld, PaymentStatusRefunded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusHeld:      {PaymentStatusReleased, PaymentStatusRefunded},
	PaymentStatusReleased:  {},
	PaymentStatusRefunded:  {},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) IsTerminal() bool {
	return s.IsValid() && len(paymentTransitions[s]) == 0
}

func (s PaymentStatus) CanTransitionTo(newStatus PaymentStatus) bool {
	return contains(paymentTransitions[s], newStatus)
}

// Sources возвращает статусы, из которых допустим переход в s.
// Используется как список ожидаемых значений для условного обновления.
func (s PaymentStatus) Sources() []string {
	var out []string
	for _, from := range []PaymentStatus{
		PaymentStatusPending, PaymentStatusHeld, PaymentStatusReleased,
		PaymentStatusRefunded, PaymentStatusFailed, PaymentStatusCancelled,
	} {
		if from.CanTransitionTo(s) {
			out = append(out, string(from))
		}
	}
	return out
}

type BidStatus string

const (
	BidStatusPending   BidStatus = models.BidStatusPending
	BidStatusAccepted  BidStatus = models.BidStatusAccepted
	BidStatusRejected  BidStatus = models.BidStatusRejected
	BidStatusCompleted BidStatus = models.BidStatusCompleted
	BidStatusCancelled BidStatus = models.BidStatusCancelled
)

func (s BidStatus) IsValid() bool {
	switch s {
	case BidStatusPending, BidStatusAccepted, BidStatusRejected, BidStatusCompleted, BidStatusCancelled:
		return true
	}
	return false
}

// IsEditable: менять и удалять можно только ставку, которую ещё не рассмотрели.
func (s BidStatus) IsEditable() bool {
	return s == BidStatusPending
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
