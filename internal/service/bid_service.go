package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// BidService ведёт ставки и атомарно принимает одну из них.
type BidService struct {
	tx       TxManager
	tasks    TaskRepository
	bids     BidRepository
	escrow   *EscrowService
	gateway  PaymentGateway
	notifier Notifier
}

// NewBidService создаёт сервис ставок.
func NewBidService(tx TxManager, tasks TaskRepository, bids BidRepository, escrow *EscrowService, gw PaymentGateway, notifier Notifier) *BidService {
	return &BidService{
		tx:       tx,
		tasks:    tasks,
		bids:     bids,
		escrow:   escrow,
		gateway:  gw,
		notifier: notifier,
	}
}

// CreateBidInput описывает входные данные ставки.
type CreateBidInput struct {
	TaskID   uuid.UUID
	TaskerID uuid.UUID
	Amount   float64
	Message  string
}

// CreateBid создаёт ставку исполнителя на открытую задачу.
func (s *BidService) CreateBid(ctx context.Context, in CreateBidInput) (*models.Bid, error) {
	if in.Amount <= 0 {
		return nil, validation("сумма ставки должна быть больше нуля")
	}

	task, err := s.tasks.GetByID(ctx, in.TaskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось создать ставку")
	}
	if task.OwnerID == in.TaskerID {
		return nil, forbidden("нельзя делать ставку на собственную задачу")
	}
	if task.Status != models.TaskStatusOpen {
		return nil, conflict("задача не принимает ставки")
	}

	bid := &models.Bid{
		TaskID:   in.TaskID,
		TaskerID: in.TaskerID,
		Amount:   in.Amount,
		Message:  strings.TrimSpace(in.Message),
		Status:   models.BidStatusPending,
	}
	if err := s.bids.Create(ctx, bid); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, conflict("вы уже сделали ставку на эту задачу")
		}
		return nil, mapRepoError(err, "не удалось создать ставку")
	}

	return bid, nil
}

// UpdateBid меняет сумму и сообщение ставки, пока её не рассмотрели.
func (s *BidService) UpdateBid(ctx context.Context, bidID, taskerID uuid.UUID, amount float64, message string) (*models.Bid, error) {
	if amount <= 0 {
		return nil, validation("сумма ставки должна быть больше нуля")
	}

	bid, err := s.ownPendingBid(ctx, bidID, taskerID)
	if err != nil {
		return nil, err
	}

	ok, err := s.bids.UpdatePending(ctx, bid.ID, amount, strings.TrimSpace(message))
	if err != nil {
		return nil, mapRepoError(err, "не удалось обновить ставку")
	}
	if !ok {
		return nil, conflict("ставку уже рассмотрели")
	}

	updated, err := s.bids.GetByID(ctx, bid.ID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось обновить ставку")
	}
	return updated, nil
}

// DeleteBid удаляет ставку, пока она не рассмотрена и задача открыта.
func (s *BidService) DeleteBid(ctx context.Context, bidID, taskerID uuid.UUID) error {
	bid, err := s.ownPendingBid(ctx, bidID, taskerID)
	if err != nil {
		return err
	}

	task, err := s.tasks.GetByID(ctx, bid.TaskID)
	if err != nil {
		return mapRepoError(err, "не удалось удалить ставку")
	}
	if task.Status != models.TaskStatusOpen {
		return conflict("задача уже не открыта, ставку нельзя удалить")
	}

	ok, err := s.bids.DeletePending(ctx, bid.ID)
	if err != nil {
		return mapRepoError(err, "не удалось удалить ставку")
	}
	if !ok {
		return conflict("ставку уже рассмотрели")
	}
	return nil
}

// ListTaskBids возвращает все ставки заказчику и только собственные ставки исполнителю.
func (s *BidService) ListTaskBids(ctx context.Context, taskID, userID uuid.UUID) ([]models.Bid, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить ставки")
	}

	bids, err := s.bids.ListByTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить ставки")
	}
	if task.OwnerID == userID {
		return bids, nil
	}

	own := make([]models.Bid, 0, 1)
	for _, bid := range bids {
		if bid.TaskerID == userID {
			own = append(own, bid)
		}
	}
	return own, nil
}

func (s *BidService) ownPendingBid(ctx context.Context, bidID, taskerID uuid.UUID) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить ставку")
	}
	if bid.TaskerID != taskerID {
		return nil, forbidden("это не ваша ставка")
	}
	if bid.Status != models.BidStatusPending {
		return nil, conflict("ставку уже рассмотрели")
	}
	return bid, nil
}

// AcceptBidResult итог принятия ставки.
type AcceptBidResult struct {
	Bid          *models.Bid     `json:"bid"`
	Task         *models.Task    `json:"task"`
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

// AcceptBid принимает ставку: создаёт escrow-платёж, переводит задачу в работу,
// назначает исполнителя и отклоняет остальные ставки. Всё или ничего.
func (s *BidService) AcceptBid(ctx context.Context, bidID, posterID uuid.UUID) (*AcceptBidResult, error) {
	var (
		result   *AcceptBidResult
		intentID string
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		bid, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.Status != models.BidStatusPending {
			return conflict("ставка уже рассмотрена")
		}

		task, err := s.tasks.GetByID(ctx, bid.TaskID)
		if err != nil {
			return err
		}
		if task.OwnerID != posterID {
			return forbidden("принять ставку может только заказчик")
		}
		if task.Status != models.TaskStatusOpen {
			return conflict("задача не открыта для принятия ставок")
		}

		escrow, err := s.escrow.CreateEscrowPayment(ctx, task, bid)
		if err != nil {
			return err
		}
		intentID = escrow.Payment.PaymentIntentID

		// задачу обновляем первой: конкурентные принятия по одной задаче выстраиваются на её строке
		ok, err := s.tasks.Assign(ctx, task.ID, bid.TaskerID, intentID)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("задача уже в работе")
		}

		ok, err = s.bids.TransitionStatus(ctx, bid.ID, []string{models.BidStatusPending}, models.BidStatusAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("ставка уже рассмотрена")
		}

		if _, err := s.bids.RejectSiblings(ctx, task.ID, bid.ID); err != nil {
			return err
		}

		bid.Status = models.BidStatusAccepted
		assignee := bid.TaskerID
		task.Status = models.TaskStatusInProgress
		task.AssignedTo = &assignee
		task.PaymentIntentID = &intentID

		result = &AcceptBidResult{
			Bid:          bid,
			Task:         task,
			Payment:      escrow.Payment,
			ClientSecret: escrow.ClientSecret,
		}
		return nil
	})
	if err != nil {
		if intentID != "" {
			s.cancelOrphanIntent(ctx, intentID)
		}
		return nil, mapRepoError(err, "не удалось принять ставку")
	}

	s.notifier.Notify(ctx, result.Bid.TaskerID,
		"Ставка принята",
		"Заказчик принял вашу ставку на задачу «"+result.Task.Title+"»",
		models.NotificationTypeBidAccepted, &result.Task.ID)

	return result, nil
}

// cancelOrphanIntent снимает блокировку intent, созданного в откатившейся транзакции.
func (s *BidService) cancelOrphanIntent(ctx context.Context, intentID string) {
	if err := s.gateway.RefundPaymentIntent(ctx, intentID, "принятие ставки отменено"); err != nil {
		logger.WithFields(logrus.Fields{"intent_id": intentID}).WithError(err).Warn("bid service: не удалось отменить intent после отката")
	}
}
