package xpg

import (
	"context"
	"database/sql"
)

// Querier is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a query returning rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a statement that does not return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Beginner is implemented by *sql.DB and *sql.Conn. It starts a transaction.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// DBTX is the subset of methods shared by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	Querier
	Execer
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
	_ DBTX = (*sql.Conn)(nil)
)

// Handle is where statements run: a [*Pool], a [*Tx], or a [Direct] adapter.
//
// Every statement borrows the handle for exactly the duration of one call
// and returns it before the call completes.
type Handle interface {
	lease(ctx context.Context) (DBTX, func(ctx context.Context, err error), error)
}

type direct struct {
	db DBTX
}

// Direct adapts any [DBTX] (for example a pinned *sql.Conn) into a [Handle].
// It adds no transaction bookkeeping.
func Direct(db DBTX) Handle {
	return direct{db: db}
}

func (d direct) lease(context.Context) (DBTX, func(context.Context, error), error) {
	return d.db, func(context.Context, error) {}, nil
}
