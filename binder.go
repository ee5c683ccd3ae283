package xpg

import (
	"database/sql"
	"fmt"
	"strings"

	"xorkevin.dev/kerrors"
)

// Column declares one expected result column.
//
// Optional columns may be absent from the row; they then read as null.
// NotNull rejects a present SQL NULL, like a sqlx "col!" override.
type Column struct {
	Name     string
	Type     string
	Optional bool
	NotNull  bool
}

// Shape is the ordered list of columns a statement is expected to return.
type Shape []Column

// Required declares a column that must be present. It may hold null.
func Required(name, typ string) Column {
	return Column{Name: name, Type: typ}
}

// NotNull declares a column that must be present and not null.
func NotNull(name, typ string) Column {
	return Column{Name: name, Type: typ, NotNull: true}
}

// Optional declares a column that may be absent or null.
func Optional(name, typ string) Column {
	return Column{Name: name, Type: typ, Optional: true}
}

// Row is one raw result row: driver values keyed by normalized column name.
type Row map[string]any

// Record is one decoded row, in shape order.
type Record struct {
	cols []string
	vals map[string]Value
}

// Columns returns the column names in shape order.
func (r Record) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Len is the number of columns.
func (r Record) Len() int { return len(r.cols) }

// Lookup returns the value of column name and whether the shape declared it.
func (r Record) Lookup(name string) (Value, bool) {
	v, ok := r.vals[normalizeColAscii(name)]
	return v, ok
}

// Get returns the value of column name, or null when absent.
func (r Record) Get(name string) Value {
	v, _ := r.Lookup(name)
	return v
}

func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(": ")
		b.WriteString(r.vals[c].String())
	}
	b.WriteByte('}')
	return b.String()
}

// Bind decodes row into a Record following shape. Columns in the row but not
// in shape are ignored. Bind either returns a fully decoded Record or an
// error; it never returns a partial Record.
func Bind(reg *Registry, row Row, shape Shape) (Record, error) {
	codecs, err := shapeCodecs(reg, shape)
	if err != nil {
		return Record{}, err
	}
	return bindWith(codecs, row, shape)
}

func shapeCodecs(reg *Registry, shape Shape) ([]Codec, error) {
	codecs := make([]Codec, len(shape))
	for i, col := range shape {
		c, err := reg.Lookup(col.Type)
		if err != nil {
			return nil, kerrors.WithMsg(&ColumnError{Column: col.Name, Err: err}, fmt.Sprintf("Invalid shape column %s", col.Name))
		}
		codecs[i] = c
	}
	return codecs, nil
}

func bindWith(codecs []Codec, row Row, shape Shape) (Record, error) {
	rec := Record{
		cols: make([]string, 0, len(shape)),
		vals: make(map[string]Value, len(shape)),
	}
	for i, col := range shape {
		name := normalizeColAscii(col.Name)
		src, ok := row[name]
		if !ok {
			if !col.Optional {
				return Record{}, kerrors.WithKind(&ColumnError{Column: col.Name, Err: ErrMissingColumn}, ErrMissingColumn, fmt.Sprintf("Missing column %s", col.Name))
			}
			rec.cols = append(rec.cols, name)
			rec.vals[name] = Null()
			continue
		}
		if src == nil && col.NotNull {
			return Record{}, kerrors.WithKind(&ColumnError{Column: col.Name, Err: ErrUnexpectedNull}, ErrColumnDecode, fmt.Sprintf("Column %s is null", col.Name))
		}
		v, err := codecs[i].Decode(src)
		if err != nil {
			return Record{}, kerrors.WithKind(&ColumnError{Column: col.Name, Err: err}, ErrColumnDecode, fmt.Sprintf("Failed decoding column %s", col.Name))
		}
		rec.cols = append(rec.cols, name)
		rec.vals[name] = v
	}
	return rec, nil
}

// rowReader scans the current row of rows into a [Row]. Column names are
// normalized once per result set; the first of duplicate names wins.
type rowReader struct {
	names []string
	dest  []any
	raw   []any
}

func newRowReader(rows *sql.Rows) (*rowReader, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, kerrors.WithKind(nil, ErrInvalidQuery, "Query returned zero columns")
	}
	rr := &rowReader{
		names: make([]string, len(cols)),
		dest:  make([]any, len(cols)),
		raw:   make([]any, len(cols)),
	}
	for i, c := range cols {
		rr.names[i] = normalizeColAscii(c)
		rr.dest[i] = &rr.raw[i]
	}
	return rr, nil
}

func (rr *rowReader) read(rows *sql.Rows) (Row, error) {
	for i := range rr.raw {
		rr.raw[i] = nil
	}
	if err := rows.Scan(rr.dest...); err != nil {
		return nil, err
	}
	row := make(Row, len(rr.names))
	for i, n := range rr.names {
		if _, ok := row[n]; ok {
			continue
		}
		row[n] = rr.raw[i]
	}
	return row, nil
}
