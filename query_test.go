package xpg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* -------------------------------------------------------
   Special connector for rows.Next error simulation
--------------------------------------------------------*/

type errNextConnector struct{}

func (c *errNextConnector) Connect(context.Context) (driver.Conn, error) { return &errNextConn{}, nil }
func (c *errNextConnector) Driver() driver.Driver                        { return testDriver{} }

type errNextConn struct{ testConn }

func (c *errNextConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &errRows{}, nil
}

var errDriverNext = errors.New("driver next error")

// errRows fails on first Next(); database/sql exposes it via rows.Err() after Next() returns false.
type errRows struct{}

func (e *errRows) Columns() []string { return []string{"a"} }
func (e *errRows) Close() error      { return nil }
func (e *errRows) Next(dest []driver.Value) error {
	return errDriverNext
}

var table1Cols = []string{"table1_id", "text", "text_null", "citext", "citext_null", "mytext", "mytext_null", "myenum", "myenum_null"}

var table1Shape = Shape{
	NotNull("table1_id", "uuid"),
	Required("text", "text"),
	Required("text_null", "text"),
	NotNull("citext", "citext"),
	Required("citext_null", "citext"),
	NotNull("mytext", "mytext"),
	Required("mytext_null", "mytext"),
	NotNull("myenum", "my_enum"),
	Required("myenum_null", "my_enum"),
}

func rowsDB(t *testing.T, cols []string, rows [][]driver.Value) *sql.DB {
	return newTestDB(t, func(q string, _ []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return cols, rows, nil
	})
}

func TestFetchOne_Cardinality(t *testing.T) {
	ctx := context.Background()
	ex := NewExecutor(testRegistry(t))
	shape := Shape{NotNull("n", "int8")}

	db := rowsDB(t, []string{"n"}, [][]driver.Value{})
	_, err := ex.FetchOne(ctx, NewPool(db), shape, "q")
	assert.True(t, errors.Is(err, ErrNoRows))
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	_ = db.Close()

	db = rowsDB(t, []string{"n"}, [][]driver.Value{{int64(7)}})
	rec, err := ex.FetchOne(ctx, NewPool(db), shape, "q")
	require.NoError(t, err)
	n, _ := rec.Get("n").AsInt()
	assert.Equal(t, int64(7), n)
	_ = db.Close()

	db = rowsDB(t, []string{"n"}, [][]driver.Value{{int64(7)}, {int64(8)}})
	_, err = ex.FetchOne(ctx, NewPool(db), shape, "q")
	assert.True(t, errors.Is(err, ErrMultipleRows))
	_ = db.Close()
}

func TestFetchOne_InsertTextOnly(t *testing.T) {
	id := uuid.New()
	db := newTestDB(t, func(q string, args []driver.NamedValue) ([]string, [][]driver.Value, error) {
		if len(args) != 1 || args[0].Value != "insert_text_col" {
			t.Fatalf("unexpected args: %#v", args)
		}
		return table1Cols, [][]driver.Value{{
			[]byte(id.String()), []byte("insert_text_col"), nil,
			[]byte(""), nil, []byte(""), nil, []byte("state1"), nil,
		}}, nil
	})
	defer func() { _ = db.Close() }()

	ex := NewExecutor(testRegistry(t))
	rec, err := ex.FetchOne(context.Background(), NewPool(db), table1Shape,
		`INSERT INTO table1 (text) VALUES ($1) RETURNING *`, "insert_text_col")
	require.NoError(t, err)

	assert.True(t, Text("insert_text_col").Equal(rec.Get("text")))
	for _, c := range []string{"text_null", "citext_null", "mytext_null", "myenum_null"} {
		assert.True(t, rec.Get(c).IsNull(), "%s should be null", c)
	}
	got, ok := rec.Get("table1_id").AsUUID()
	assert.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, KindDomain, rec.Get("citext").Kind())
}

func TestQuery_EnumArray(t *testing.T) {
	db := rowsDB(t, []string{"myenums"}, [][]driver.Value{{[]byte("{state1,state2,state1}")}})
	defer func() { _ = db.Close() }()

	reg := testRegistry(t)
	ex := NewExecutor(reg)
	recs, err := ex.Query(context.Background(), NewPool(db), Shape{NotNull("myenums", "_my_enum")},
		`SELECT ARRAY(SELECT myenum FROM table1) AS myenums`)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	et, err := reg.Enum("my_enum")
	require.NoError(t, err)
	want := Array("my_enum", et.MustValue("state1"), et.MustValue("state2"), et.MustValue("state1"))
	assert.True(t, want.Equal(recs[0].Get("myenums")))
}

func TestSelectAndGet_Struct(t *testing.T) {
	type entry struct {
		Text   string  `db:"text"`
		MyEnum *string `db:"myenum,type=my_enum"`
	}
	db := rowsDB(t, []string{`"TEXT"`, "myenum", "ignored"}, [][]driver.Value{
		{[]byte("a"), []byte("state3"), int64(1)},
		{[]byte("b"), nil, int64(2)},
	})
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	ex := NewExecutor(testRegistry(t))
	got, err := Select[entry](ctx, ex, NewPool(db), "q")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	require.NotNil(t, got[0].MyEnum)
	assert.Equal(t, "state3", *got[0].MyEnum)
	assert.Equal(t, "b", got[1].Text)
	assert.Nil(t, got[1].MyEnum)

	_, err = Get[entry](ctx, ex, NewPool(db), "q")
	assert.True(t, errors.Is(err, ErrMultipleRows))
}

func TestQuery_Empty_NoError(t *testing.T) {
	db := rowsDB(t, []string{"id"}, [][]driver.Value{})
	defer func() { _ = db.Close() }()

	got, err := NewExecutor(NewRegistry()).Query(context.Background(), NewPool(db), Shape{Required("id", "int8")}, "empty")
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	ex := NewExecutor(testRegistry(t))

	wantErr := errors.New("boom")
	db := newTestDB(t, func(q string, _ []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return nil, nil, wantErr
	})
	_, err := ex.Query(ctx, NewPool(db), Shape{Required("a", "int8")}, "fail")
	assert.True(t, errors.Is(err, wantErr))
	_ = db.Close()

	db = sql.OpenDB(&errNextConnector{})
	_, err = ex.Query(ctx, NewPool(db), Shape{Required("a", "int8")}, "ignored")
	assert.True(t, errors.Is(err, errDriverNext))
	_ = db.Close()

	db = rowsDB(t, []string{"a"}, [][]driver.Value{{int64(1)}, {[]byte("x")}})
	_, err = ex.Query(ctx, NewPool(db), Shape{Required("a", "int8")}, "q")
	assert.True(t, errors.Is(err, ErrColumnDecode), "all or nothing")
	_ = db.Close()

	db = rowsDB(t, []string{"a"}, [][]driver.Value{{int64(1)}})
	_, err = ex.Query(ctx, NewPool(db), Shape{Required("a", "int8"), Required("b", "int8")}, "q")
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, err = ex.Query(ctx, NewPool(db), Shape{Required("a", "nope")}, "q")
	assert.True(t, errors.Is(err, ErrUnregisteredType))
	_ = db.Close()

	db = rowsDB(t, []string{}, [][]driver.Value{{}})
	_, err = ex.Query(ctx, NewPool(db), Shape{}, "q")
	assert.True(t, errors.Is(err, ErrInvalidQuery))
	_ = db.Close()
}
