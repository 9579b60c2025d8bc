package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

func TestTaskService_CreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.CreateTask(ctx, CreateTaskInput{OwnerID: f.posterID, Title: "  ", Budget: 10})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.tasks.CreateTask(ctx, CreateTaskInput{OwnerID: f.posterID, Title: "Покрасить забор", Budget: 0})
	assert.True(t, apperror.IsValidation(err))

	task, err := f.tasks.CreateTask(ctx, CreateTaskInput{OwnerID: f.posterID, Title: " Покрасить забор ", Budget: 120})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, task.Status)
	assert.Equal(t, "Покрасить забор", task.Title)

	list, err := f.tasks.ListPosterTasks(ctx, f.posterID, 0, -1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTaskService_SubmitDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, _ := f.acceptedTask(t, 40)

	_, err := f.tasks.SubmitDelivery(ctx, task.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))

	f.notifier.expectNotify(f.posterID, models.NotificationTypeDeliverySubmitted)
	updated, err := f.tasks.SubmitDelivery(ctx, task.ID, f.taskerID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusUnderReview, updated.Status)

	_, err = f.tasks.SubmitDelivery(ctx, task.ID, f.taskerID)
	assert.True(t, apperror.IsConflict(err), "повторная сдача запрещена по умолчанию")
}

func TestTaskService_SubmitDelivery_ResubmitAllowed(t *testing.T) {
	f := newFixture(t, withResubmit())
	ctx := context.Background()
	task, _, _ := f.acceptedTask(t, 40)

	f.notifier.On("Notify", mock.Anything, f.posterID, mock.Anything, mock.Anything, models.NotificationTypeDeliverySubmitted, mock.Anything).Twice()

	_, err := f.tasks.SubmitDelivery(ctx, task.ID, f.taskerID)
	require.NoError(t, err)
	_, err = f.tasks.SubmitDelivery(ctx, task.ID, f.taskerID)
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusUnderReview, f.task(t, task.ID).Status)
}

func TestTaskService_CompleteTask_ReleasesHeldPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, bid, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	f.gw.On("RetrievePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentRequiresCapture}, nil).Once()
	f.gw.On("CapturePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentSucceeded}, nil).Once()
	f.notifier.expectNotify(f.taskerID, models.NotificationTypeTaskCompleted)

	res, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, res.Task.Status)
	assert.Equal(t, models.PaymentStatusReleased, res.Payment.Status)
	assert.Equal(t, models.TaskStatusCompleted, f.task(t, task.ID).Status)
	assert.Equal(t, models.PaymentStatusReleased, f.payment(t, payment.ID).Status)
	assert.Equal(t, models.BidStatusCompleted, f.bid(t, bid.ID).Status)
}

func TestTaskService_CompleteTask_ReconcilesPendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, payment := f.acceptedTask(t, 80)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	f.gw.On("RetrievePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentRequiresCapture}, nil).Twice()
	f.gw.On("CapturePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentSucceeded}, nil).Once()
	f.notifier.expectNotify(f.taskerID, models.NotificationTypeTaskCompleted)

	_, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, f.payment(t, payment.ID).Status)
}

func TestTaskService_CompleteTask_PaymentNotAuthorizedYet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, payment := f.acceptedTask(t, 80)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	f.gw.On("RetrievePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentRequiresPaymentMethod}, nil).Once()

	_, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))

	f.gw.AssertNotCalled(t, "CapturePaymentIntent", mock.Anything, mock.Anything)
	assert.Equal(t, models.TaskStatusUnderReview, f.task(t, task.ID).Status)
	assert.Equal(t, models.PaymentStatusPending, f.payment(t, payment.ID).Status)
}

func TestTaskService_CompleteTask_CaptureFailureKeepsTaskUnderReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	f.gw.On("RetrievePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(&gateway.PaymentIntent{ID: payment.PaymentIntentID, Status: gateway.IntentRequiresCapture}, nil).Once()
	f.gw.On("CapturePaymentIntent", mock.Anything, payment.PaymentIntentID).
		Return(nil, &gateway.Error{Kind: gateway.KindConnection, Message: "timeout"}).Once()

	_, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	require.Error(t, err)
	assert.True(t, apperror.IsPaymentGateway(err))

	assert.Equal(t, models.TaskStatusUnderReview, f.task(t, task.ID).Status)
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
}

func TestTaskService_CompleteTask_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, _ := f.acceptedTask(t, 80)

	_, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	assert.True(t, apperror.IsConflict(err), "задача ещё не на проверке")

	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)
	_, err = f.tasks.CompleteTask(ctx, task.ID, f.taskerID)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.tasks.CompleteTask(ctx, uuid.New(), f.posterID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTaskService_CancelTask_InProgressRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, bid, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)

	f.gw.On("RefundPaymentIntent", mock.Anything, payment.PaymentIntentID, "передумал").Return(nil).Once()
	f.notifier.expectNotify(f.taskerID, models.NotificationTypeTaskCancelled)

	res, err := f.tasks.CancelTask(ctx, task.ID, f.posterID, "передумал")
	require.NoError(t, err)

	require.Len(t, res.Refunded, 1)
	assert.Nil(t, res.Dispute)

	stored := f.task(t, task.ID)
	assert.Equal(t, models.TaskStatusCancelled, stored.Status)
	assert.Nil(t, stored.AssignedTo)

	refunded := f.payment(t, payment.ID)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundReason)
	assert.Equal(t, "передумал", *refunded.RefundReason)
	assert.Equal(t, models.BidStatusCancelled, f.bid(t, bid.ID).Status)
}

func TestTaskService_CancelTask_OpenWithoutPayment(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t)

	res, err := f.tasks.CancelTask(context.Background(), task.ID, f.posterID, "")
	require.NoError(t, err)
	assert.Empty(t, res.Refunded)
	assert.Equal(t, models.TaskStatusCancelled, f.task(t, task.ID).Status)

	f.gw.AssertNotCalled(t, "RefundPaymentIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskService_CancelTask_UnderReviewOpensDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, bid, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	_, err := f.tasks.CancelTask(ctx, task.ID, f.posterID, "")
	assert.True(t, apperror.IsValidation(err), "без претензии спор не открывается")

	f.notifier.expectNotify(f.taskerID, models.NotificationTypeTaskDisputed)
	res, err := f.tasks.CancelTask(ctx, task.ID, f.posterID, "работа не соответствует описанию")
	require.NoError(t, err)

	require.NotNil(t, res.Dispute)
	assert.Equal(t, models.DisputeStatusOpen, res.Dispute.Status)
	assert.Equal(t, models.TaskStatusDisputed, f.task(t, task.ID).Status)

	// средства остаются удержанными до решения спора
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
	assert.Equal(t, models.BidStatusAccepted, f.bid(t, bid.ID).Status)
	f.gw.AssertNotCalled(t, "RefundPaymentIntent", mock.Anything, mock.Anything, mock.Anything)

	d, err := f.disputes.GetTaskDispute(ctx, task.ID, f.taskerID)
	require.NoError(t, err)
	require.NotNil(t, d.PaymentID)
	assert.Equal(t, payment.ID, *d.PaymentID)
}

func TestTaskService_CancelTask_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.seedTask(t)

	_, err := f.tasks.CancelTask(ctx, task.ID, uuid.New(), "")
	assert.True(t, apperror.IsForbidden(err))

	f.setTaskStatus(t, task.ID, models.TaskStatusCompleted)
	_, err = f.tasks.CancelTask(ctx, task.ID, f.posterID, "")
	assert.True(t, apperror.IsConflict(err))
}

func TestTaskService_CancelTask_RefundFailureKeepsTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _, payment := f.acceptedTask(t, 80)

	f.gw.On("RefundPaymentIntent", mock.Anything, payment.PaymentIntentID, mock.Anything).
		Return(&gateway.Error{Kind: gateway.KindAPI, Message: "stripe unavailable"}).Once()

	_, err := f.tasks.CancelTask(ctx, task.ID, f.posterID, "")
	require.Error(t, err)
	assert.True(t, apperror.IsPaymentGateway(err))

	assert.Equal(t, models.TaskStatusInProgress, f.task(t, task.ID).Status)
	assert.Equal(t, models.PaymentStatusPending, f.payment(t, payment.ID).Status)
}

func TestTaskService_CompleteTask_LosesToConcurrentDispute(t *testing.T) {
	race := &interleaving{}
	f := newFixture(t, withTasks(func(s *memStore) TaskRepository {
		return interleavedTasks{memTasks: memTasks{s}, interleaving: race}
	}))
	ctx := context.Background()
	task, bid, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)
	f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview)

	// спор фиксируется после того, как завершение прочитало задачу
	race.schedule(func() { f.setTaskStatus(t, task.ID, models.TaskStatusDisputed) })

	_, err := f.tasks.CompleteTask(ctx, task.ID, f.posterID)
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))

	f.gw.AssertNotCalled(t, "RetrievePaymentIntent", mock.Anything, mock.Anything)
	f.gw.AssertNotCalled(t, "CapturePaymentIntent", mock.Anything, mock.Anything)
	assert.Equal(t, models.TaskStatusDisputed, f.task(t, task.ID).Status)
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
	assert.Equal(t, models.BidStatusAccepted, f.bid(t, bid.ID).Status)
}

func TestTaskService_CancelTask_LosesToConcurrentDelivery(t *testing.T) {
	race := &interleaving{}
	f := newFixture(t, withTasks(func(s *memStore) TaskRepository {
		return interleavedTasks{memTasks: memTasks{s}, interleaving: race}
	}))
	ctx := context.Background()
	task, bid, payment := f.acceptedTask(t, 80)
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)

	// исполнитель сдаёт работу между чтением задачи и отменой
	race.schedule(func() { f.setTaskStatus(t, task.ID, models.TaskStatusUnderReview) })

	_, err := f.tasks.CancelTask(ctx, task.ID, f.posterID, "передумал")
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))

	f.gw.AssertNotCalled(t, "RefundPaymentIntent", mock.Anything, mock.Anything, mock.Anything)
	stored := f.task(t, task.ID)
	assert.Equal(t, models.TaskStatusUnderReview, stored.Status)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, f.taskerID, *stored.AssignedTo)
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
	assert.Equal(t, models.BidStatusAccepted, f.bid(t, bid.ID).Status)
}
