package common

import (
	"errors"

	"github.com/lib/pq"
)

// Общие ошибки для всех репозиториев
var (
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

const uniqueViolation = "23505"

// MapError переводит нарушение уникального индекса в ErrAlreadyExists.
// Исходная ошибка драйвера остаётся доступной через errors.As.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &constraintError{constraint: pqErr.Constraint, cause: err}
	}
	return err
}

type constraintError struct {
	constraint string
	cause      error
}

func (e *constraintError) Error() string {
	return "entity already exists (" + e.constraint + "): " + e.cause.Error()
}

func (e *constraintError) Is(target error) bool {
	return target == ErrAlreadyExists
}

func (e *constraintError) Unwrap() error {
	return e.cause
}
