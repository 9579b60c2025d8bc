package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/models"
)

const (
	testFeeRate   = 0.2
	testAccountID = "acct_tasker"
)

type fixture struct {
	store    *memStore
	gw       *mockGateway
	notifier *mockNotifier

	escrow   *EscrowService
	bids     *BidService
	tasks    *TaskService
	disputes *DisputeService

	posterID uuid.UUID
	taskerID uuid.UUID
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	tasks         func(*memStore) TaskRepository
	bids          func(*memStore) BidRepository
	allowResubmit bool
}

// withTasks подменяет репозиторий задач, например чтобы сымитировать сбой базы.
func withTasks(tasks func(*memStore) TaskRepository) fixtureOption {
	return func(c *fixtureConfig) { c.tasks = tasks }
}

func withBids(bids func(*memStore) BidRepository) fixtureOption {
	return func(c *fixtureConfig) { c.bids = bids }
}

func withResubmit() fixtureOption {
	return func(c *fixtureConfig) { c.allowResubmit = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := newMemStore()
	cfg := fixtureConfig{
		tasks: func(s *memStore) TaskRepository { return memTasks{s} },
		bids:  func(s *memStore) BidRepository { return memBids{s} },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	tasks := cfg.tasks(store)
	bids := cfg.bids(store)

	gw := &mockGateway{}
	notifier := &mockNotifier{}
	t.Cleanup(func() {
		gw.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	escrow := NewEscrowService(store, tasks, bids, memPayments{store}, memAccounts{store}, gw, testFeeRate, "usd")
	disputes := NewDisputeService(memDisputes{store}, tasks, memPayments{store})

	return &fixture{
		store:    store,
		gw:       gw,
		notifier: notifier,
		escrow:   escrow,
		bids:     NewBidService(store, tasks, bids, escrow, gw, notifier),
		tasks:    NewTaskService(store, tasks, memPayments{store}, escrow, disputes, notifier, cfg.allowResubmit),
		disputes: disputes,
		posterID: uuid.New(),
		taskerID: uuid.New(),
	}
}

func (f *fixture) seedTask(t *testing.T) *models.Task {
	t.Helper()
	task := &models.Task{OwnerID: f.posterID, Title: "Собрать шкаф", Budget: 100, Status: models.TaskStatusOpen}
	require.NoError(t, memTasks{f.store}.Create(context.Background(), task))
	return task
}

func (f *fixture) seedBid(t *testing.T, taskID, taskerID uuid.UUID, amount float64) *models.Bid {
	t.Helper()
	bid := &models.Bid{TaskID: taskID, TaskerID: taskerID, Amount: amount, Status: models.BidStatusPending}
	require.NoError(t, memBids{f.store}.Create(context.Background(), bid))
	return bid
}

func (f *fixture) seedAccount(t *testing.T, userID uuid.UUID, accountID string, completed bool) {
	t.Helper()
	require.NoError(t, memAccounts{f.store}.Create(context.Background(), &models.StripeAccount{
		UserID:         userID,
		AccountID:      accountID,
		Completed:      completed,
		ChargesEnabled: completed,
		PayoutsEnabled: completed,
	}))
}

func (f *fixture) task(t *testing.T, id uuid.UUID) *models.Task {
	t.Helper()
	task, err := memTasks{f.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (f *fixture) bid(t *testing.T, id uuid.UUID) *models.Bid {
	t.Helper()
	bid, err := memBids{f.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return bid
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	p, err := memPayments{f.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) setTaskStatus(t *testing.T, id uuid.UUID, status string) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	task := f.store.tasks[id]
	task.Status = status
	f.store.tasks[id] = task
}

func (f *fixture) setBidStatus(t *testing.T, id uuid.UUID, status string) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	b := f.store.bids[id]
	b.Status = status
	f.store.bids[id] = b
}

func (f *fixture) setPaymentStatus(t *testing.T, id uuid.UUID, status string) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p := f.store.payments[id]
	p.Status = status
	f.store.payments[id] = p
}

func (f *fixture) expectIntent(intentID string) *mock.Call {
	return f.gw.On("CreatePaymentIntent", mock.Anything, mock.AnythingOfType("gateway.IntentParams")).
		Return(&gateway.PaymentIntent{
			ID:           intentID,
			ClientSecret: intentID + "_secret",
			Status:       gateway.IntentRequiresPaymentMethod,
		}, nil).Once()
}

// acceptedTask проводит задачу через принятие ставки и возвращает её и платёж.
func (f *fixture) acceptedTask(t *testing.T, amount float64) (*models.Task, *models.Bid, *models.Payment) {
	t.Helper()

	task := f.seedTask(t)
	bid := f.seedBid(t, task.ID, f.taskerID, amount)
	f.seedAccount(t, f.taskerID, testAccountID, true)

	intentID := "pi_" + bid.ID.String()[:8]
	f.expectIntent(intentID)
	f.notifier.expectNotify(f.taskerID, models.NotificationTypeBidAccepted)

	res, err := f.bids.AcceptBid(context.Background(), bid.ID, f.posterID)
	require.NoError(t, err)
	return f.task(t, task.ID), f.bid(t, bid.ID), f.payment(t, res.Payment.ID)
}

func intentEvent(id string, kind gateway.EventKind, intentID string, at time.Time) *gateway.Event {
	return &gateway.Event{
		ID:        id,
		Kind:      kind,
		CreatedAt: at,
		Intent:    &gateway.PaymentIntent{ID: intentID},
	}
}
