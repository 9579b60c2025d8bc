package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

// Kind класс ошибки платёжного шлюза.
type Kind string

const (
	KindCard           Kind = "card_error"
	KindRateLimit      Kind = "rate_limit"
	KindInvalidRequest Kind = "invalid_request"
	KindAPI            Kind = "api_error"
	KindConnection     Kind = "connection_error"
	KindAuthentication Kind = "authentication_error"
	KindUnknown        Kind = "unknown"
)

// ErrInvalidSignature возвращается, когда подпись webhook не прошла проверку.
var ErrInvalidSignature = errors.New("gateway: invalid webhook signature")

// Error классифицированная ошибка шлюза.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// classify переводит ошибку stripe-go в Error. Ошибка не из API считается сетевой.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &Error{Kind: KindConnection, Message: err.Error(), Cause: err}
	}

	kind := KindUnknown
	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		kind = KindAuthentication
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
	case stripeErr.Type == stripe.ErrorTypeCard:
		kind = KindCard
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		kind = KindInvalidRequest
	case stripeErr.Type == stripe.ErrorTypeAPI:
		kind = KindAPI
	}

	return &Error{
		Kind:       kind,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
		HTTPStatus: stripeErr.HTTPStatusCode,
		Cause:      err,
	}
}

// KindOf возвращает класс ошибки или KindUnknown.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnknown
}

// Describe формирует понятное пользователю описание ошибки шлюза.
func Describe(err error) string {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return "неизвестная ошибка платёжного сервиса"
	}

	switch gwErr.Kind {
	case KindCard:
		if gwErr.Message != "" {
			return "платёж отклонён банком: " + gwErr.Message
		}
		return "платёж отклонён банком"
	case KindRateLimit:
		return "платёжный сервис перегружен, повторите попытку позже"
	case KindInvalidRequest:
		return "некорректный запрос к платёжному сервису: " + gwErr.Message
	case KindAPI:
		return "внутренняя ошибка платёжного сервиса"
	case KindConnection:
		return "не удалось связаться с платёжным сервисом"
	case KindAuthentication:
		return "ошибка авторизации в платёжном сервисе"
	default:
		return "неизвестная ошибка платёжного сервиса"
	}
}

// IsAlreadyCaptured распознаёт гонку, когда intent уже был списан другим запросом.
func IsAlreadyCaptured(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	if gwErr.Code != "" && gwErr.Code != string(stripe.ErrorCodePaymentIntentUnexpectedState) {
		return false
	}
	return strings.Contains(strings.ToLower(gwErr.Message), "already been captured")
}
