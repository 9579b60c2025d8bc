package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/taskhub-backend/internal/cache"
	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

func newWebhookService(t *testing.T, f *fixture) *WebhookService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewWebhookService(f.gw, f.escrow, cache.NewMemoryEventStore(ctx), time.Hour)
}

func TestWebhookService_Verify(t *testing.T) {
	f := newFixture(t)
	svc := newWebhookService(t, f)
	payload := []byte(`{"id":"evt_1"}`)

	_, err := svc.Verify(payload, "")
	assert.Equal(t, apperror.ErrCodeBadRequest, apperror.CodeOf(err))

	f.gw.On("ParseWebhook", payload, "t=1,v1=bad").Return(nil, gateway.ErrInvalidSignature).Once()
	_, err = svc.Verify(payload, "t=1,v1=bad")
	require.Error(t, err)
	assert.Equal(t, apperror.ErrCodeBadRequest, apperror.CodeOf(err))
	assert.True(t, errors.Is(err, gateway.ErrInvalidSignature))

	expected := &gateway.Event{ID: "evt_1", Kind: gateway.EventPaymentSucceeded}
	f.gw.On("ParseWebhook", payload, "t=1,v1=good").Return(expected, nil).Once()
	event, err := svc.Verify(payload, "t=1,v1=good")
	require.NoError(t, err)
	assert.Equal(t, expected, event)
}

func TestWebhookService_Process_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := newWebhookService(t, f)
	ctx := context.Background()
	_, bid, payment := f.acceptedTask(t, 50)

	failed := intentEvent("evt_fail", gateway.EventPaymentFailed, payment.PaymentIntentID, time.Now())
	require.NoError(t, svc.Process(ctx, failed))
	assert.Equal(t, models.PaymentStatusRefunded, f.payment(t, payment.ID).Status)
	assert.Equal(t, models.BidStatusCancelled, f.bid(t, bid.ID).Status)

	// имитируем ручную правку между доставками: повтор того же события не должен её перетереть
	f.setPaymentStatus(t, payment.ID, models.PaymentStatusHeld)
	require.NoError(t, svc.Process(ctx, failed))
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
}

type brokenEventStore struct{}

func (brokenEventStore) Seen(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenEventStore) Remember(context.Context, string, time.Duration) error {
	return errors.New("redis: connection refused")
}

func TestWebhookService_Process_StoreOutageStillApplies(t *testing.T) {
	f := newFixture(t)
	svc := NewWebhookService(f.gw, f.escrow, brokenEventStore{}, 0)
	_, _, payment := f.acceptedTask(t, 50)

	event := intentEvent("evt_ok", gateway.EventPaymentCapturable, payment.PaymentIntentID, time.Now())
	require.NoError(t, svc.Process(context.Background(), event))
	assert.Equal(t, models.PaymentStatusHeld, f.payment(t, payment.ID).Status)
}
