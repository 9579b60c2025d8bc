package valueobject

import (
	"math"
	"strings"

	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

// Money хранит сумму в минимальных единицах валюты (центах).
type Money struct {
	Cents    int64
	Currency string
}

func NewMoney(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "некорректная сумма")
	}
	if amount <= 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма должна быть больше нуля")
	}
	if currency == "" {
		currency = "usd"
	}
	return Money{Cents: ToCents(amount), Currency: strings.ToLower(currency)}, nil
}

// Major возвращает сумму в основных единицах для хранения.
func (m Money) Major() float64 {
	return FromCents(m.Cents)
}

// FeeSplit описывает разбиение суммы ставки между платформой и исполнителем.
type FeeSplit struct {
	Total  Money
	Fee    Money
	Tasker Money
}

// SplitFee считает комиссию платформы с округлением до цента.
// Остаток целиком уходит исполнителю, поэтому Total = Fee + Tasker всегда.
func (m Money) SplitFee(rate float64) (FeeSplit, error) {
	if rate < 0 || rate >= 1 {
		return FeeSplit{}, apperror.New(apperror.ErrCodeValidation, "некорректная ставка комиссии")
	}
	fee := int64(math.Round(float64(m.Cents) * rate))
	return FeeSplit{
		Total:  m,
		Fee:    Money{Cents: fee, Currency: m.Currency},
		Tasker: Money{Cents: m.Cents - fee, Currency: m.Currency},
	}, nil
}

func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
