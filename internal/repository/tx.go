package repository

import (
	"context"
	"database/sql"

	"github.com/nlebrun/docuflow/pkg/database"
)

type txKey struct{}

// TxManager runs state-changing operations inside a single SQLite
// transaction. The transaction travels on the context so every repository
// called from fn joins it transparently.
type TxManager struct {
	db *database.DB
}

// NewTxManager creates a transaction manager over the shared connection.
func NewTxManager(db *database.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTransaction executes fn within a transaction carried on the context.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn resolves the active transaction from the context, falling back to
// the shared connection for standalone operations.
func conn(ctx context.Context, db *database.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}
