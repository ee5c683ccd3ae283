package xpg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

// Pool is a shared handle over a *sql.DB connection pool. Each statement run
// through a Pool uses whichever pooled connection database/sql hands out.
type Pool struct {
	db  *sql.DB
	log *zap.Logger
}

// NewPool wraps an open *sql.DB.
func NewPool(db *sql.DB, opts ...Option) *Pool {
	o := buildOptions(opts)
	return &Pool{db: db, log: o.log}
}

// Connect opens driverName with dsn, limits the pool to maxConns open
// connections (0 means unlimited) and verifies connectivity.
func Connect(ctx context.Context, driverName, dsn string, maxConns int, opts ...Option) (*Pool, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrConnection, fmt.Sprintf("Failed opening %s database", driverName))
	}
	db.SetMaxOpenConns(maxConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, kerrors.WithKind(err, ErrConnection, "Failed connecting to database")
	}
	p := NewPool(db, opts...)
	p.log.Debug("Connected to database", zap.String("driver", driverName), zap.Int("max_conns", maxConns))
	return p, nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB { return p.db }

// Close closes the underlying pool.
func (p *Pool) Close() error { return p.db.Close() }

func (p *Pool) lease(context.Context) (DBTX, func(context.Context, error), error) {
	return p.db, func(context.Context, error) {}, nil
}

// Begin starts a transaction with default options.
func (p *Pool) Begin(ctx context.Context) (*Tx, error) {
	return p.BeginTx(ctx, nil)
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	return BeginTx(ctx, p.db, opts, WithLogger(p.log))
}

// TxState is the lifecycle state of a [Tx].
type TxState int

const (
	TxNotStarted TxState = iota
	TxOpen
	TxCommitted
	TxRolledBack
	// TxAborted means a statement was cancelled mid-flight. The connection
	// state is unknown, so only Rollback is accepted.
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxNotStarted:
		return "not started"
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	case TxAborted:
		return "aborted"
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Tx is an open transaction.
//
// A Tx is exclusively owned by the unit of work that began it and is always
// passed by pointer. Every statement takes an exclusive lease on it for the
// duration of the call, so at most one statement is in flight and composed
// operations can hand the same Tx down one after another. Commit and
// Rollback consume the Tx; any later use fails with [ErrTransactionClosed].
// A failed statement leaves the Tx open; rolling back is the caller's call.
type Tx struct {
	mu    sync.Mutex
	tx    *sql.Tx
	state TxState
	busy  bool
	log   *zap.Logger
}

// BeginTx starts a transaction on b.
func BeginTx(ctx context.Context, b Beginner, opts *sql.TxOptions, o ...Option) (*Tx, error) {
	bo := buildOptions(o)
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return nil, classifyDriverErr(err, "Failed beginning transaction")
	}
	bo.log.Debug("Began transaction")
	return &Tx{tx: tx, state: TxOpen, log: bo.log}, nil
}

// State reports the current lifecycle state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tx) usable() error {
	switch t.state {
	case TxOpen:
		if t.busy {
			return kerrors.WithKind(nil, ErrTransactionBusy, "Transaction has a statement in flight")
		}
		return nil
	case TxAborted:
		return kerrors.WithKind(nil, ErrTransactionAborted, "Transaction aborted by a cancelled statement; roll back")
	case TxNotStarted:
		return kerrors.WithKind(nil, ErrTransactionClosed, "Transaction not started")
	default:
		return kerrors.WithKind(nil, ErrTransactionClosed, fmt.Sprintf("Transaction already %s", t.state))
	}
}

func (t *Tx) lease(context.Context) (DBTX, func(context.Context, error), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return nil, nil, err
	}
	t.busy = true
	return t.tx, t.release, nil
}

func (t *Tx) release(ctx context.Context, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	if err != nil && ctx.Err() != nil && t.state == TxOpen {
		t.state = TxAborted
		t.log.Debug("Transaction aborted", zap.Error(ctx.Err()))
	}
}

// Commit commits the transaction and consumes t. An aborted Tx is not
// committed and stays aborted until rolled back.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.tx.Commit(); err != nil {
		t.state = TxRolledBack
		return classifyDriverErr(err, "Failed committing transaction")
	}
	t.state = TxCommitted
	t.log.Debug("Committed transaction")
	return nil
}

// Rollback aborts the transaction and consumes t. It is the only operation
// accepted by an aborted Tx.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	aborted := t.state == TxAborted
	if !aborted {
		if err := t.usable(); err != nil {
			return err
		}
	}
	t.state = TxRolledBack
	if err := t.tx.Rollback(); err != nil {
		// database/sql may already have discarded a cancelled transaction.
		if aborted && errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return classifyDriverErr(err, "Failed rolling back transaction")
	}
	t.log.Debug("Rolled back transaction")
	return nil
}
