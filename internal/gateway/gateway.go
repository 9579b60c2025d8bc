// Package gateway оборачивает внешний платёжный процессор: payment intents с ручным
// списанием, возвраты, подключённые аккаунты исполнителей и разбор webhook-событий.
package gateway

import "time"

// IntentStatus статус payment intent на стороне процессора.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// IsAuthorized сообщает, что средства заблокированы или уже списаны.
func (s IntentStatus) IsAuthorized() bool {
	return s == IntentRequiresCapture || s == IntentSucceeded
}

// PaymentIntent минимальное представление intent, нужное escrow.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountCents  int64
	Metadata     map[string]string
}

// IntentParams параметры создания intent с ручным списанием.
type IntentParams struct {
	AmountCents        int64
	FeeCents           int64
	Currency           string
	DestinationAccount string
	Metadata           map[string]string
}

// Account подключённый аккаунт исполнителя.
type Account struct {
	ID             string
	Email          string
	ChargesEnabled bool
	PayoutsEnabled bool
}

// Ключи метаданных, по которым webhook находит локальные записи.
const (
	MetadataTaskID   = "task_id"
	MetadataBidID    = "bid_id"
	MetadataPosterID = "poster_id"
	MetadataTaskerID = "tasker_id"
)

// EventKind тип webhook-события.
type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_intent.succeeded"
	EventPaymentCapturable EventKind = "payment_intent.amount_capturable_updated"
	EventPaymentFailed     EventKind = "payment_intent.payment_failed"
	EventPaymentCanceled   EventKind = "payment_intent.canceled"
	EventAccountUpdated    EventKind = "account.updated"
)

// Event проверенное событие процессора. Заполнено либо Intent, либо Account.
type Event struct {
	ID        string
	Kind      EventKind
	CreatedAt time.Time
	Intent    *PaymentIntent
	Account   *Account
}
