package xpg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"xorkevin.dev/kerrors"
)

// Query runs a statement that returns rows and decodes every row through
// shape. Extra result columns are ignored; see [Bind] for the column rules.
//
// Example:
//
//	shape := xpg.Shape{xpg.NotNull("myenums", "_my_enum")}
//	recs, err := ex.Query(ctx, pool, shape, `SELECT ARRAY(SELECT myenum FROM table1) AS myenums`)
//	if err != nil {
//	    return err
//	}
//	elems, _ := recs[0].Get("myenums").Elems()
func (e *Executor) Query(ctx context.Context, h Handle, shape Shape, query string, args ...any) ([]Record, error) {
	return e.query(ctx, h, shape, 0, query, args)
}

// Select is Query with the shape derived from T and each record decoded
// into a T. See [ShapeOf] for the struct rules.
func Select[T any](ctx context.Context, e *Executor, h Handle, query string, args ...any) ([]T, error) {
	shape, err := ShapeOf[T]()
	if err != nil {
		return nil, err
	}
	recs, err := e.Query(ctx, h, shape, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// query reads at most limit records when limit > 0 and fails with
// [ErrMultipleRows] if another row follows.
func (e *Executor) query(ctx context.Context, h Handle, shape Shape, limit int, query string, args []any) ([]Record, error) {
	codecs, err := shapeCodecs(e.reg, shape)
	if err != nil {
		return nil, err
	}
	enc, err := e.encodeArgs(args)
	if err != nil {
		return nil, err
	}
	db, release, err := h.lease(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	recs, err := queryRecords(ctx, db, codecs, shape, limit, query, enc)
	release(ctx, err)
	e.logStatement(query, len(enc), start, err)
	return recs, err
}

func queryRecords(ctx context.Context, q Querier, codecs []Codec, shape Shape, limit int, query string, args []any) (out []Record, err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyDriverErr(err, "Failed executing query")
	}
	// Propagate rows.Close() error if nothing else failed.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = classifyDriverErr(cerr, "Failed closing rows")
		}
	}()

	var rr *rowReader
	for rows.Next() {
		if limit > 0 && len(out) == limit {
			return nil, kerrors.WithKind(nil, ErrMultipleRows, fmt.Sprintf("Expected at most %d rows", limit))
		}
		if rr == nil {
			if rr, err = newRowReader(rows); err != nil {
				return nil, err
			}
		}
		row, err := rr.read(rows)
		if err != nil {
			return nil, kerrors.WithKind(err, ErrDecode, "Failed reading row")
		}
		rec, err := bindWith(codecs, row, shape)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if ne := rows.Err(); ne != nil {
		return nil, classifyDriverErr(ne, "Failed iterating rows")
	}
	return out, nil
}

// FetchOne runs a statement that must return exactly one row, such as an
// INSERT ... RETURNING. Zero rows fail with [ErrNoRows], which also matches
// [sql.ErrNoRows]; more than one row fails with [ErrMultipleRows].
//
// Example:
//
//	rec, err := ex.FetchOne(ctx, pool, shape,
//	    `INSERT INTO table1 (text) VALUES ($1) RETURNING *`, "insert_text_col")
//	if errors.Is(err, xpg.ErrNoRows) {
//	    // handle not found
//	}
func (e *Executor) FetchOne(ctx context.Context, h Handle, shape Shape, query string, args ...any) (Record, error) {
	recs, err := e.query(ctx, h, shape, 1, query, args)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, kerrors.WithKind(sql.ErrNoRows, ErrNoRows, "Expected exactly one row")
	}
	return recs[0], nil
}

// Get is FetchOne with the shape derived from T and the record decoded into
// a T.
func Get[T any](ctx context.Context, e *Executor, h Handle, query string, args ...any) (T, error) {
	var zero T
	shape, err := ShapeOf[T]()
	if err != nil {
		return zero, err
	}
	rec, err := e.FetchOne(ctx, h, shape, query, args...)
	if err != nil {
		return zero, err
	}
	return Decode[T](rec)
}
