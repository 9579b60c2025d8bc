package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskhub-backend/internal/domain/valueobject"
	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskhub-backend/internal/repository"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// TaskRepository описывает взаимодействие с хранилищем задач.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Task, error)
	Assign(ctx context.Context, id, taskerID uuid.UUID, paymentIntentID string) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, clearAssignee bool) (bool, error)
}

// BidRepository описывает взаимодействие с хранилищем ставок.
type BidRepository interface {
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Bid, error)
	UpdatePending(ctx context.Context, id uuid.UUID, amount float64, message string) (bool, error)
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	RejectSiblings(ctx context.Context, taskID, acceptedBidID uuid.UUID) (int64, error)
}

// PaymentRepository описывает взаимодействие с хранилищем escrow-платежей.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindOpenByBid(ctx context.Context, bidID uuid.UUID) (*models.Payment, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Payment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, refundReason *string) (bool, error)
	ApplyEvent(ctx context.Context, id uuid.UUID, from []string, to string, eventAt time.Time) (bool, error)
}

// StripeAccountRepository описывает хранилище подключённых аккаунтов.
type StripeAccountRepository interface {
	Create(ctx context.Context, account *models.StripeAccount) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.StripeAccount, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.StripeAccount, error)
	UpdateCapabilities(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled bool) (bool, error)
}

// PaymentGateway внешний платёжный процессор.
type PaymentGateway interface {
	CreateConnectedAccount(ctx context.Context, email string) (*gateway.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
	RetrieveAccount(ctx context.Context, accountID string) (*gateway.Account, error)
	CreatePaymentIntent(ctx context.Context, in gateway.IntentParams) (*gateway.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error)
	RefundPaymentIntent(ctx context.Context, intentID, reason string) error
	ParseWebhook(payload []byte, signature string) (*gateway.Event, error)
}

// EscrowService единственная точка создания, выплаты и возврата escrow-средств.
type EscrowService struct {
	tx       TxManager
	tasks    TaskRepository
	bids     BidRepository
	payments PaymentRepository
	accounts StripeAccountRepository
	gateway  PaymentGateway
	feeRate  float64
	currency string
}

// NewEscrowService создаёт сервис escrow. feeRate задаётся долей (0.2 = 20%).
func NewEscrowService(
	tx TxManager,
	tasks TaskRepository,
	bids BidRepository,
	payments PaymentRepository,
	accounts StripeAccountRepository,
	gw PaymentGateway,
	feeRate float64,
	currency string,
) *EscrowService {
	return &EscrowService{
		tx:       tx,
		tasks:    tasks,
		bids:     bids,
		payments: payments,
		accounts: accounts,
		gateway:  gw,
		feeRate:  feeRate,
		currency: currency,
	}
}

// EscrowPayment созданный платёж и секрет для подтверждения оплаты на клиенте.
type EscrowPayment struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

// CreateEscrowPayment блокирует сумму ставки у заказчика без списания.
// Вызывается только координатором принятия ставки, внутри его транзакции.
func (s *EscrowService) CreateEscrowPayment(ctx context.Context, task *models.Task, bid *models.Bid) (*EscrowPayment, error) {
	if bid.TaskerID == uuid.Nil {
		return nil, validation("у ставки нет исполнителя")
	}

	account, err := s.accounts.GetByUserID(ctx, bid.TaskerID)
	if err != nil {
		if errors.Is(err, repository.ErrStripeAccountNotFound) {
			return nil, validation("исполнитель не подключил платёжный аккаунт")
		}
		return nil, mapRepoError(err, "не удалось проверить платёжный аккаунт исполнителя")
	}
	if !account.Completed {
		return nil, validation("исполнитель не завершил подключение платёжного аккаунта")
	}

	if _, err := s.payments.FindOpenByBid(ctx, bid.ID); err == nil {
		return nil, conflict("по этой ставке уже есть платёж")
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, mapRepoError(err, "не удалось проверить платежи по ставке")
	}

	money, err := valueobject.NewMoney(bid.Amount, s.currency)
	if err != nil {
		return nil, err
	}
	split, err := money.SplitFee(s.feeRate)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.IntentParams{
		AmountCents:        split.Total.Cents,
		FeeCents:           split.Fee.Cents,
		Currency:           money.Currency,
		DestinationAccount: account.AccountID,
		Metadata: map[string]string{
			gateway.MetadataTaskID:   task.ID.String(),
			gateway.MetadataBidID:    bid.ID.String(),
			gateway.MetadataPosterID: task.OwnerID.String(),
			gateway.MetadataTaskerID: bid.TaskerID.String(),
		},
	})
	if err != nil {
		return nil, gatewayFailure(err, "не удалось создать платёж", logrus.Fields{"bid_id": bid.ID})
	}

	payment := &models.Payment{
		TaskID:          task.ID,
		BidID:           bid.ID,
		PosterID:        task.OwnerID,
		TaskerID:        bid.TaskerID,
		PaymentIntentID: intent.ID,
		Amount:          split.Total.Major(),
		PlatformFee:     split.Fee.Major(),
		TaskerAmount:    split.Tasker.Major(),
		Currency:        money.Currency,
		Status:          models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, conflict("по этой ставке уже есть платёж")
		}
		return nil, mapRepoError(err, "не удалось сохранить платёж")
	}

	return &EscrowPayment{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// ReleaseEscrowPayment списывает удержанные средства в пользу исполнителя.
// Вызывается только при завершении задачи.
func (s *EscrowService) ReleaseEscrowPayment(ctx context.Context, paymentID, posterID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось выпустить платёж")
	}
	if payment.Status != models.PaymentStatusHeld {
		return nil, conflict(fmt.Sprintf("выплатить можно только удержанный платёж, текущий статус: %s", payment.Status))
	}

	task, err := s.tasks.GetByID(ctx, payment.TaskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось выпустить платёж")
	}
	if task.OwnerID != posterID {
		return nil, forbidden("выплату может подтвердить только заказчик")
	}

	fields := logrus.Fields{"payment_id": payment.ID, "intent_id": payment.PaymentIntentID}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, payment.PaymentIntentID)
	if err != nil {
		return nil, gatewayFailure(err, "не удалось выпустить платёж", fields)
	}

	if intent.Status == gateway.IntentRequiresCapture {
		captured, err := s.gateway.CapturePaymentIntent(ctx, payment.PaymentIntentID)
		switch {
		case err == nil:
			intent = captured
		case gateway.IsAlreadyCaptured(err):
			logger.WithFields(fields).Debug("escrow: платёж уже списан параллельным запросом")
			if intent, err = s.gateway.RetrievePaymentIntent(ctx, payment.PaymentIntentID); err != nil {
				return nil, gatewayFailure(err, "не удалось выпустить платёж", fields)
			}
		default:
			return nil, gatewayFailure(err, "не удалось выпустить платёж", fields)
		}
	}

	if intent.Status != gateway.IntentSucceeded {
		return nil, apperror.New(apperror.ErrCodePaymentGateway,
			fmt.Sprintf("не удалось выпустить платёж: статус в платёжном сервисе %s", intent.Status))
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.payments.TransitionStatus(ctx, payment.ID, valueobject.PaymentStatusReleased.Sources(), models.PaymentStatusReleased, nil)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("статус платежа изменился, повторите попытку")
		}

		ok, err = s.bids.TransitionStatus(ctx, payment.BidID, []string{models.BidStatusAccepted}, models.BidStatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			logger.WithFields(fields).Warn("escrow: ставка не в статусе accepted при выплате")
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, "не удалось выпустить платёж")
	}

	payment.Status = models.PaymentStatusReleased
	return payment, nil
}

// RefundEscrowPayment возвращает заказчику средства незавершённого платежа.
func (s *EscrowService) RefundEscrowPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось вернуть платёж")
	}
	if !payment.IsOpen() {
		return nil, conflict(fmt.Sprintf("вернуть можно только ожидающий или удержанный платёж, текущий статус: %s", payment.Status))
	}

	fields := logrus.Fields{"payment_id": payment.ID, "intent_id": payment.PaymentIntentID}

	if err := s.gateway.RefundPaymentIntent(ctx, payment.PaymentIntentID, reason); err != nil {
		return nil, gatewayFailure(err, "не удалось вернуть платёж", fields)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.payments.TransitionStatus(ctx, payment.ID, valueobject.PaymentStatusRefunded.Sources(), models.PaymentStatusRefunded, &reason)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.payments.GetByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			// webhook об отмене мог успеть раньше
			if current.Status != models.PaymentStatusRefunded {
				return conflict("статус платежа изменился, повторите попытку")
			}
			logger.WithFields(fields).Debug("escrow: платёж уже возвращён")
		}

		_, err = s.bids.TransitionStatus(ctx, payment.BidID,
			[]string{models.BidStatusAccepted, models.BidStatusPending}, models.BidStatusCancelled)
		return err
	})
	if err != nil {
		return nil, mapRepoError(err, "не удалось вернуть платёж")
	}

	payment.Status = models.PaymentStatusRefunded
	payment.RefundReason = &reason
	return payment, nil
}

// ReconcilePending сверяет ожидающий платёж с платёжным сервисом.
// Авторизованный intent переводит платёж в held, отменённый в refunded.
func (s *EscrowService) ReconcilePending(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.Status != models.PaymentStatusPending {
		return payment, nil
	}

	fields := logrus.Fields{"payment_id": payment.ID, "intent_id": payment.PaymentIntentID}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, payment.PaymentIntentID)
	if err != nil {
		return nil, gatewayFailure(err, "не удалось сверить платёж", fields)
	}

	switch {
	case intent.Status.IsAuthorized():
		if _, err := s.payments.TransitionStatus(ctx, payment.ID, valueobject.PaymentStatusHeld.Sources(), models.PaymentStatusHeld, nil); err != nil {
			return nil, mapRepoError(err, "не удалось сверить платёж")
		}
	case intent.Status == gateway.IntentCanceled:
		reason := "платёж отменён в платёжном сервисе"
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			ok, err := s.payments.TransitionStatus(ctx, payment.ID, []string{models.PaymentStatusPending}, models.PaymentStatusRefunded, &reason)
			if err != nil || !ok {
				return err
			}
			_, err = s.bids.TransitionStatus(ctx, payment.BidID,
				[]string{models.BidStatusAccepted, models.BidStatusPending}, models.BidStatusCancelled)
			return err
		})
		if err != nil {
			return nil, mapRepoError(err, "не удалось сверить платёж")
		}
	default:
		return payment, nil
	}

	// статус мог поменять и параллельный webhook, поэтому перечитываем
	updated, err := s.payments.GetByID(ctx, payment.ID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось сверить платёж")
	}
	return updated, nil
}

// HandleWebhookEvent применяет проверенное событие платёжного сервиса к локальному состоянию.
// Повторное или устаревшее событие ничего не меняет и не считается ошибкой.
func (s *EscrowService) HandleWebhookEvent(ctx context.Context, event *gateway.Event) error {
	fields := logrus.Fields{"event_id": event.ID, "event_kind": event.Kind}

	switch event.Kind {
	case gateway.EventPaymentSucceeded, gateway.EventPaymentCapturable:
		if event.Intent == nil {
			logger.WithFields(fields).Warn("webhook: событие без payment intent")
			return nil
		}
		return s.markHeld(ctx, event, fields)
	case gateway.EventPaymentFailed, gateway.EventPaymentCanceled:
		if event.Intent == nil {
			logger.WithFields(fields).Warn("webhook: событие без payment intent")
			return nil
		}
		return s.markFailed(ctx, event, fields)
	case gateway.EventAccountUpdated:
		if event.Account == nil {
			logger.WithFields(fields).Warn("webhook: событие без аккаунта")
			return nil
		}
		return s.syncAccount(ctx, event.Account, fields)
	default:
		logger.WithFields(fields).Info("webhook: тип события не обрабатывается")
		return nil
	}
}

// markHeld переводит платёж в held. Ставка остаётся accepted: это и есть признак работы в процессе.
func (s *EscrowService) markHeld(ctx context.Context, event *gateway.Event, fields logrus.Fields) error {
	payment, ok, err := s.paymentForEvent(ctx, event, fields)
	if err != nil || !ok {
		return err
	}

	applied, err := s.payments.ApplyEvent(ctx, payment.ID, valueobject.PaymentStatusHeld.Sources(), models.PaymentStatusHeld, event.CreatedAt)
	if err != nil {
		return mapRepoError(err, "не удалось обработать событие платежа")
	}
	if !applied {
		logger.WithFields(fields).WithField("status", payment.Status).Debug("webhook: платёж уже обработан, событие пропущено")
	}
	return nil
}

// markFailed переводит несобранный платёж в refunded и отменяет ставку.
func (s *EscrowService) markFailed(ctx context.Context, event *gateway.Event, fields logrus.Fields) error {
	payment, ok, err := s.paymentForEvent(ctx, event, fields)
	if err != nil || !ok {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		applied, err := s.payments.ApplyEvent(ctx, payment.ID, valueobject.PaymentStatusRefunded.Sources(), models.PaymentStatusRefunded, event.CreatedAt)
		if err != nil {
			return err
		}
		if !applied {
			logger.WithFields(fields).WithField("status", payment.Status).Debug("webhook: платёж уже обработан, событие пропущено")
			return nil
		}

		_, err = s.bids.TransitionStatus(ctx, payment.BidID,
			[]string{models.BidStatusAccepted, models.BidStatusPending}, models.BidStatusCancelled)
		return err
	})
	if err != nil {
		return mapRepoError(err, "не удалось обработать событие платежа")
	}
	return nil
}

// paymentForEvent находит платёж по intent и проверяет, что ставка из метаданных совпадает.
func (s *EscrowService) paymentForEvent(ctx context.Context, event *gateway.Event, fields logrus.Fields) (*models.Payment, bool, error) {
	fields["intent_id"] = event.Intent.ID

	payment, err := s.payments.GetByIntentID(ctx, event.Intent.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			logger.WithFields(fields).Info("webhook: платёж для intent не найден, событие пропущено")
			return nil, false, nil
		}
		return nil, false, mapRepoError(err, "не удалось обработать событие платежа")
	}

	if bidID := event.Intent.Metadata[gateway.MetadataBidID]; bidID != "" && bidID != payment.BidID.String() {
		logger.WithFields(fields).WithField("bid_id", bidID).Warn("webhook: ставка в метаданных не совпадает с платежом")
		return nil, false, nil
	}

	fields["payment_id"] = payment.ID
	return payment, true, nil
}

func (s *EscrowService) syncAccount(ctx context.Context, account *gateway.Account, fields logrus.Fields) error {
	fields["account_id"] = account.ID

	ok, err := s.accounts.UpdateCapabilities(ctx, account.ID, account.ChargesEnabled, account.PayoutsEnabled)
	if err != nil {
		return mapRepoError(err, "не удалось обновить платёжный аккаунт")
	}
	if !ok {
		logger.WithFields(fields).Info("webhook: аккаунт не найден, событие пропущено")
	}
	return nil
}

// GetPayment возвращает платёж участнику сделки.
func (s *EscrowService) GetPayment(ctx context.Context, paymentID, userID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить платёж")
	}
	if payment.PosterID != userID && payment.TaskerID != userID {
		return nil, forbidden("платёж доступен только участникам сделки")
	}
	return payment, nil
}

// ListTaskPayments возвращает платежи задачи заказчику или назначенному исполнителю.
func (s *EscrowService) ListTaskPayments(ctx context.Context, taskID, userID uuid.UUID) ([]models.Payment, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить платежи задачи")
	}
	if task.OwnerID != userID && !task.IsAssignedTo(userID) {
		return nil, forbidden("платежи доступны только участникам задачи")
	}

	payments, err := s.payments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoError(err, "не удалось получить платежи задачи")
	}
	return payments, nil
}

// SyncPaymentStatus вручную сверяет ожидающий платёж, если webhook задержался.
func (s *EscrowService) SyncPaymentStatus(ctx context.Context, paymentID, userID uuid.UUID) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}
	return s.ReconcilePending(ctx, payment)
}

// gatewayFailure логирует ошибку шлюза и возвращает её с понятным описанием.
func gatewayFailure(err error, op string, fields logrus.Fields) error {
	logger.WithFields(fields).WithError(err).WithField("kind", gateway.KindOf(err)).Error("escrow: ошибка платёжного сервиса")
	return apperror.Wrap(err, apperror.ErrCodePaymentGateway, op+": "+gateway.Describe(err))
}
