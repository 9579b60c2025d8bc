package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// memStore хранилище в памяти с теми же ограничениями уникальности, что и схема Postgres.
// Транзакции выполняются по одной и откатываются снимком.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	tasks    map[uuid.UUID]models.Task
	bids     map[uuid.UUID]models.Bid
	payments map[uuid.UUID]models.Payment
	accounts map[uuid.UUID]models.StripeAccount
	disputes map[uuid.UUID]models.Dispute
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		tasks:    map[uuid.UUID]models.Task{},
		bids:     map[uuid.UUID]models.Bid{},
		payments: map[uuid.UUID]models.Payment{},
		accounts: map[uuid.UUID]models.StripeAccount{},
		disputes: map[uuid.UUID]models.Dispute{},
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	tasks    map[uuid.UUID]models.Task
	bids     map[uuid.UUID]models.Bid
	payments map[uuid.UUID]models.Payment
	accounts map[uuid.UUID]models.StripeAccount
	disputes map[uuid.UUID]models.Dispute
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		tasks:    copyMap(s.tasks),
		bids:     copyMap(s.bids),
		payments: copyMap(s.payments),
		accounts: copyMap(s.accounts),
		disputes: copyMap(s.disputes),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = snap.tasks
	s.bids = snap.bids
	s.payments = snap.payments
	s.accounts = snap.accounts
	s.disputes = snap.disputes
}

func copyMap[T any](m map[uuid.UUID]T) map[uuid.UUID]T {
	out := make(map[uuid.UUID]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func oneOf(status string, statuses []string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("%s: %w", constraint, common.ErrAlreadyExists)
}

// interleaving один раз выполняет чужой коммит сразу после очередного чтения,
// между проверкой статуса и условной записью.
type interleaving struct {
	hookMu sync.Mutex
	next   func()
}

func (i *interleaving) schedule(fn func()) {
	i.hookMu.Lock()
	defer i.hookMu.Unlock()
	i.next = fn
}

func (i *interleaving) fire() {
	i.hookMu.Lock()
	fn := i.next
	i.next = nil
	i.hookMu.Unlock()
	if fn != nil {
		fn()
	}
}

// задачи

type memTasks struct{ *memStore }

func (r memTasks) Create(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	task.ID = uuid.New()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks[task.ID] = *task
	return nil
}

func (r memTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return &t, nil
}

func (r memTasks) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memTasks) Assign(_ context.Context, id, taskerID uuid.UUID, intentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != models.TaskStatusOpen {
		return false, nil
	}
	t.Status = models.TaskStatusInProgress
	t.AssignedTo = &taskerID
	t.PaymentIntentID = &intentID
	r.tasks[id] = t
	return true, nil
}

func (r memTasks) TransitionStatus(_ context.Context, id uuid.UUID, from []string, to string, clearAssignee bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || !oneOf(t.Status, from) {
		return false, nil
	}
	t.Status = to
	if clearAssignee {
		t.AssignedTo = nil
	}
	r.tasks[id] = t
	return true, nil
}

type interleavedTasks struct {
	memTasks
	*interleaving
}

func (r interleavedTasks) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := r.memTasks.GetByID(ctx, id)
	r.fire()
	return task, err
}

// ставки

type memBids struct{ *memStore }

func (r memBids) Create(_ context.Context, bid *models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bids {
		if b.TaskID == bid.TaskID && b.TaskerID == bid.TaskerID {
			return uniqueViolation("bids_task_id_tasker_id_key")
		}
	}
	now := time.Now()
	bid.ID = uuid.New()
	bid.CreatedAt, bid.UpdatedAt = now, now
	r.bids[bid.ID] = *bid
	return nil
}

func (r memBids) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok {
		return nil, repository.ErrBidNotFound
	}
	return &b, nil
}

func (r memBids) ListByTask(_ context.Context, taskID uuid.UUID) ([]models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Bid
	for _, b := range r.bids {
		if b.TaskID == taskID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memBids) UpdatePending(_ context.Context, id uuid.UUID, amount float64, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok || b.Status != models.BidStatusPending {
		return false, nil
	}
	b.Amount, b.Message = amount, message
	r.bids[id] = b
	return true, nil
}

func (r memBids) DeletePending(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok || b.Status != models.BidStatusPending {
		return false, nil
	}
	delete(r.bids, id)
	return true, nil
}

func (r memBids) TransitionStatus(_ context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok || !oneOf(b.Status, from) {
		return false, nil
	}
	if to == models.BidStatusAccepted {
		for _, other := range r.bids {
			if other.TaskID == b.TaskID && other.Status == models.BidStatusAccepted {
				return false, uniqueViolation("bids_one_accepted_per_task")
			}
		}
	}
	b.Status = to
	r.bids[id] = b
	return true, nil
}

func (r memBids) RejectSiblings(_ context.Context, taskID, acceptedBidID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, b := range r.bids {
		if b.TaskID == taskID && id != acceptedBidID && b.Status == models.BidStatusPending {
			b.Status = models.BidStatusRejected
			r.bids[id] = b
			n++
		}
	}
	return n, nil
}

type interleavedBids struct {
	memBids
	*interleaving
}

func (r interleavedBids) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, err := r.memBids.GetByID(ctx, id)
	r.fire()
	return bid, err
}

// платежи

type memPayments struct{ *memStore }

func (r memPayments) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.payments {
		if other.PaymentIntentID == p.PaymentIntentID {
			return uniqueViolation("payments_payment_intent_id_key")
		}
		if other.BidID == p.BidID && other.IsOpen() {
			return uniqueViolation("payments_one_open_per_bid")
		}
	}
	now := time.Now()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	r.payments[p.ID] = *p
	return nil
}

func (r memPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	return &p, nil
}

func (r memPayments) GetByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.PaymentIntentID == intentID {
			return &p, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (r memPayments) FindOpenByBid(_ context.Context, bidID uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.BidID == bidID && p.IsOpen() {
			return &p, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (r memPayments) ListByTask(_ context.Context, taskID uuid.UUID) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.TaskID == taskID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memPayments) TransitionStatus(_ context.Context, id uuid.UUID, from []string, to string, refundReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || !oneOf(p.Status, from) {
		return false, nil
	}
	p.Status = to
	if refundReason != nil {
		reason := *refundReason
		p.RefundReason = &reason
	}
	r.payments[id] = p
	return true, nil
}

func (r memPayments) ApplyEvent(_ context.Context, id uuid.UUID, from []string, to string, eventAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || !oneOf(p.Status, from) {
		return false, nil
	}
	if p.LastEventAt != nil && p.LastEventAt.After(eventAt) {
		return false, nil
	}
	p.Status = to
	p.LastEventAt = &eventAt
	r.payments[id] = p
	return true, nil
}

// платёжные аккаунты

type memAccounts struct{ *memStore }

func (r memAccounts) Create(_ context.Context, a *models.StripeAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.UserID]; ok {
		return uniqueViolation("stripe_accounts_user_id_key")
	}
	a.ID = uuid.New()
	r.accounts[a.UserID] = *a
	return nil
}

func (r memAccounts) GetByUserID(_ context.Context, userID uuid.UUID) (*models.StripeAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, repository.ErrStripeAccountNotFound
	}
	return &a, nil
}

func (r memAccounts) GetByAccountID(_ context.Context, accountID string) (*models.StripeAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.AccountID == accountID {
			return &a, nil
		}
	}
	return nil, repository.ErrStripeAccountNotFound
}

func (r memAccounts) UpdateCapabilities(_ context.Context, accountID string, charges, payouts bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, a := range r.accounts {
		if a.AccountID == accountID {
			a.ChargesEnabled, a.PayoutsEnabled = charges, payouts
			a.Completed = charges && payouts
			r.accounts[userID] = a
			return true, nil
		}
	}
	return false, nil
}

// споры

type memDisputes struct{ *memStore }

func (r memDisputes) Create(_ context.Context, d *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.disputes {
		if other.TaskID == d.TaskID && (other.Status == models.DisputeStatusOpen || other.Status == models.DisputeStatusUnderReview) {
			return uniqueViolation("disputes_one_open_per_task")
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	r.disputes[d.ID] = *d
	return nil
}

func (r memDisputes) GetLatestByTask(_ context.Context, taskID uuid.UUID) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Dispute
	for _, d := range r.disputes {
		if d.TaskID != taskID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			d := d
			latest = &d
		}
	}
	if latest == nil {
		return nil, repository.ErrDisputeNotFound
	}
	return latest, nil
}

// mockGateway мок платёжного шлюза.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateConnectedAccount(ctx context.Context, email string) (*gateway.Account, error) {
	args := m.Called(ctx, email)
	if acc := args.Get(0); acc != nil {
		return acc.(*gateway.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) RetrieveAccount(ctx context.Context, accountID string) (*gateway.Account, error) {
	args := m.Called(ctx, accountID)
	if acc := args.Get(0); acc != nil {
		return acc.(*gateway.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, in gateway.IntentParams) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, in)
	if pi := args.Get(0); pi != nil {
		return pi.(*gateway.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if pi := args.Get(0); pi != nil {
		return pi.(*gateway.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CapturePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if pi := args.Get(0); pi != nil {
		return pi.(*gateway.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) RefundPaymentIntent(ctx context.Context, intentID, reason string) error {
	return m.Called(ctx, intentID, reason).Error(0)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*gateway.Event, error) {
	args := m.Called(payload, signature)
	if ev := args.Get(0); ev != nil {
		return ev.(*gateway.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockNotifier мок доставки уведомлений.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, title, text, kind string, referenceID *uuid.UUID) {
	m.Called(ctx, userID, title, text, kind, referenceID)
}

// expectNotify ожидает одно уведомление указанного типа пользователю.
func (m *mockNotifier) expectNotify(userID uuid.UUID, kind string) *mock.Call {
	return m.On("Notify", mock.Anything, userID, mock.Anything, mock.Anything, kind, mock.Anything).Once()
}
