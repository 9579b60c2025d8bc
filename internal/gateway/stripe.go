package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ignatzorin/taskhub-backend/internal/config"
	"github.com/ignatzorin/taskhub-backend/internal/logger"
)

// StripeGateway реализует платёжный шлюз поверх Stripe Connect.
type StripeGateway struct {
	webhookSecret string
	currency      string
	refreshURL    string
	returnURL     string
}

// NewStripeGateway настраивает глобальный клиент stripe-go.
// Повторы на уровне SDK отключены: escrow не повторяет вызовы сам, повторяет клиент.
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	stripe.Key = cfg.SecretKey

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if logger.Log != nil {
		backendCfg.LeveledLogger = logger.Log
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	return &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		refreshURL:    cfg.OnboardingRefreshURL,
		returnURL:     cfg.OnboardingReturnURL,
	}
}

// CreateConnectedAccount создаёт express-аккаунт исполнителя.
func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, email string) (*Account, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toAccount(acct), nil
}

// CreateOnboardingLink возвращает ссылку на анкету подключённого аккаунта.
func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.refreshURL),
		ReturnURL:  stripe.String(g.returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", classify(err)
	}
	return link.URL, nil
}

func (g *StripeGateway) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toAccount(acct), nil
}

// CreatePaymentIntent блокирует средства заказчика без списания.
// Комиссия платформы удерживается через application fee, остаток уходит на аккаунт исполнителя.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in IntentParams) (*PaymentIntent, error) {
	currency := in.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(in.AmountCents),
		Currency:             stripe.String(currency),
		CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		ApplicationFeeAmount: stripe.Int64(in.FeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for key, value := range in.Metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

// CapturePaymentIntent списывает заблокированные средства.
// Если intent уже списан, вернётся ошибка, распознаваемая IsAlreadyCaptured.
func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.SetIdempotencyKey("capture-" + intentID)
	params.Context = ctx

	pi, err := paymentintent.Capture(intentID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

// RefundPaymentIntent возвращает средства заказчику.
// Несписанный intent отменяется (блокировка снимается), списанный возвращается через refund.
func (g *StripeGateway) RefundPaymentIntent(ctx context.Context, intentID, reason string) error {
	pi, err := g.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return err
	}

	switch pi.Status {
	case IntentCanceled:
		return nil
	case IntentSucceeded:
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(intentID),
			Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		}
		params.AddMetadata("reason", reason)
		params.SetIdempotencyKey("refund-" + intentID)
		params.Context = ctx

		if _, err := refund.New(params); err != nil {
			return classify(err)
		}
		return nil
	default:
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
		}
		params.Context = ctx

		if _, err := paymentintent.Cancel(intentID, params); err != nil {
			return classify(err)
		}
		return nil
	}
}

// ParseWebhook проверяет подпись и разбирает событие.
// Неизвестные типы возвращаются без Intent и Account, решение принимает вызывающий.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	return parseWebhook(payload, signature, g.webhookSecret)
}

func parseWebhook(payload []byte, signature, secret string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{
		ID:        raw.ID,
		Kind:      EventKind(raw.Type),
		CreatedAt: time.Unix(raw.Created, 0).UTC(),
	}
	if raw.Data == nil {
		return event, nil
	}

	switch event.Kind {
	case EventPaymentSucceeded, EventPaymentCapturable, EventPaymentFailed, EventPaymentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("gateway: разбор payment intent из события %s: %w", raw.ID, err)
		}
		event.Intent = toIntent(&pi)
	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(raw.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("gateway: разбор аккаунта из события %s: %w", raw.ID, err)
		}
		event.Account = toAccount(&acct)
	}

	return event, nil
}

func toIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Metadata:     pi.Metadata,
	}
}

func toAccount(acct *stripe.Account) *Account {
	return &Account{
		ID:             acct.ID,
		Email:          acct.Email,
		ChargesEnabled: acct.ChargesEnabled,
		PayoutsEnabled: acct.PayoutsEnabled,
	}
}
