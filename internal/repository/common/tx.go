package common

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// TxManager открывает транзакцию и передаёт её репозиториям через контекст.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager создаёт менеджер транзакций.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx выполняет fn в транзакции. Вложенный вызов присоединяется к внешней транзакции.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	return WithTransaction(ctx, m.db, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn возвращает транзакцию из контекста, если она есть, иначе пул соединений.
func Conn(ctx context.Context, db *sqlx.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}
