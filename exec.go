package xpg

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

// Param is a statement parameter with an explicit PostgreSQL type name.
// An empty Type infers the type from the value's kind.
type Param struct {
	Type  string
	Value Value
}

// Typed pairs v with the type name it is encoded as.
func Typed(typ string, v Value) Param {
	return Param{Type: typ, Value: v}
}

// Statement is one entry of a [Executor.Batch].
type Statement struct {
	Query string
	Args  []any
}

// Executor binds parameters and decodes results through a sealed [Registry].
// An Executor is safe for concurrent use; the handles passed to it decide
// whether statements may run concurrently.
type Executor struct {
	reg *Registry
	log *zap.Logger
}

// NewExecutor seals reg and returns an executor over it.
func NewExecutor(reg *Registry, opts ...Option) *Executor {
	o := buildOptions(opts)
	reg.Seal()
	return &Executor{reg: reg, log: o.log}
}

// Registry returns the sealed registry.
func (e *Executor) Registry() *Registry { return e.reg }

// Exec runs a statement that returns no rows and reports the number of rows
// it affected.
//
// args may be [Param], [Value], [DomainText], Go primitives, uuid.UUID,
// pointers to those, or nil. Every arg is encoded before anything is sent; a
// failed encode returns [ErrEncode] with a [ParamError].
//
// Example:
//
//	n, err := ex.Exec(ctx, tx, `UPDATE table1 SET myenum = $1 WHERE text = $2`,
//	    xpg.Typed("my_enum", xpg.Text("state2")), "insert_text_col")
func (e *Executor) Exec(ctx context.Context, h Handle, query string, args ...any) (int64, error) {
	enc, err := e.encodeArgs(args)
	if err != nil {
		return 0, err
	}
	db, release, err := h.lease(ctx)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	res, err := db.ExecContext(ctx, query, enc...)
	release(ctx, err)
	e.logStatement(query, len(enc), start, err)
	if err != nil {
		return 0, classifyDriverErr(err, "Failed executing statement")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, kerrors.WithMsg(err, "Failed reading affected rows")
	}
	return n, nil
}

// Batch runs stmts in order under a single lease of tx and returns the
// affected row count of each. It stops at the first failing statement with a
// [BatchError]; the transaction stays open either way.
func (e *Executor) Batch(ctx context.Context, tx *Tx, stmts ...Statement) ([]int64, error) {
	encoded := make([][]any, len(stmts))
	for i, s := range stmts {
		enc, err := e.encodeArgs(s.Args)
		if err != nil {
			return nil, kerrors.WithMsg(&BatchError{Index: i, Err: err}, fmt.Sprintf("Failed encoding batch statement %d", i))
		}
		encoded[i] = enc
	}
	db, release, err := tx.lease(ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]int64, 0, len(stmts))
	for i, s := range stmts {
		start := time.Now()
		res, err := db.ExecContext(ctx, s.Query, encoded[i]...)
		e.logStatement(s.Query, len(encoded[i]), start, err)
		if err == nil {
			var n int64
			n, err = res.RowsAffected()
			counts = append(counts, n)
		}
		if err != nil {
			release(ctx, err)
			return counts, classifyDriverErr(&BatchError{Index: i, Err: err}, fmt.Sprintf("Failed executing batch statement %d", i))
		}
	}
	release(ctx, nil)
	return counts, nil
}

func (e *Executor) encodeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		dv, err := e.encodeArg(a)
		if err != nil {
			return nil, kerrors.WithKind(&ParamError{Index: i, Err: err}, ErrEncode, fmt.Sprintf("Failed encoding parameter $%d", i+1))
		}
		out[i] = dv
	}
	return out, nil
}

func (e *Executor) encodeArg(a any) (any, error) {
	p, err := toParam(a)
	if err != nil {
		return nil, err
	}
	if p.Type == "" && p.Value.IsNull() {
		return nil, nil
	}
	var c Codec
	if p.Type != "" {
		c, err = e.reg.Lookup(p.Type)
	} else {
		c, err = e.reg.infer(p.Value)
	}
	if err != nil {
		return nil, err
	}
	return c.Encode(p.Value)
}

func (e *Executor) logStatement(query string, params int, start time.Time, err error) {
	if ce := e.log.Check(zap.DebugLevel, "Executed statement"); ce != nil {
		ce.Write(
			zap.String("query", query),
			zap.Int("params", params),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
}
