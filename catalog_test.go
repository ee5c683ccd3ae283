package xpg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogType struct {
	id, arrayID int64
	name        string
	typtype     string
	base        string
	labels      []string
}

// catalogSession answers the pg_type, pg_enum and pg_attribute queries from
// fixed rows.
type catalogSession struct {
	funcSession
	types   []catalogType
	columns map[string][]TableColumn
	queries int
}

func (s *catalogSession) Query(_ context.Context, query string, args []driver.NamedValue) ([]string, [][]driver.Value, error) {
	s.queries++
	switch query {
	case catalogTypesQuery:
		var names pq.StringArray
		if err := names.Scan(args[0].Value); err != nil {
			return nil, nil, err
		}
		var rows [][]driver.Value
		for _, n := range names {
			for _, ct := range s.types {
				if ct.name == n {
					rows = append(rows, []driver.Value{ct.id, []byte(ct.name), []byte(ct.typtype), ct.arrayID, []byte(ct.base)})
				}
			}
		}
		return []string{"oid", "typname", "typtype", "typarray", "basename"}, rows, nil
	case catalogEnumQuery:
		var ids pq.Int64Array
		if err := ids.Scan(args[0].Value); err != nil {
			return nil, nil, err
		}
		var rows [][]driver.Value
		for _, id := range ids {
			for _, ct := range s.types {
				if ct.id != id {
					continue
				}
				for _, l := range ct.labels {
					rows = append(rows, []driver.Value{ct.id, []byte(l)})
				}
			}
		}
		return []string{"typid", "label"}, rows, nil
	case catalogColumnsQuery:
		table, _ := args[0].Value.(string)
		var rows [][]driver.Value
		for _, c := range s.columns[table] {
			rows = append(rows, []driver.Value{[]byte(c.Name), []byte(c.Type), c.NotNull})
		}
		return []string{"name", "type", "notnull"}, rows, nil
	}
	return nil, nil, errors.New("unexpected query: " + query)
}

var table1Catalog = []catalogType{
	{id: 16390, arrayID: 16389, name: "my_enum", typtype: "e", labels: []string{"state1", "state2", "state3"}},
	{id: 16395, arrayID: 16394, name: "mytext", typtype: "d", base: "text"},
	{id: 16400, arrayID: 16399, name: "citext", typtype: "b"},
	{id: 16405, arrayID: 16404, name: "email", typtype: "d", base: "citext"},
	{id: 16410, arrayID: 16409, name: "point3", typtype: "c"},
}

var table1Columns = []TableColumn{
	{Name: "table1_id", Type: "uuid", NotNull: true},
	{Name: "text", Type: "text"},
	{Name: "text_null", Type: "text"},
	{Name: "citext", Type: "citext", NotNull: true},
	{Name: "citext_null", Type: "citext"},
	{Name: "mytext", Type: "mytext", NotNull: true},
	{Name: "mytext_null", Type: "mytext"},
	{Name: "myenum", Type: "my_enum", NotNull: true},
	{Name: "myenum_null", Type: "my_enum"},
}

func newCatalogDB(t *testing.T, s *catalogSession) *sql.DB {
	t.Helper()
	return sql.OpenDB(&testConnector{session: func() testSession { return s }})
}

func TestLoadTypes(t *testing.T) {
	s := &catalogSession{types: table1Catalog}
	db := newCatalogDB(t, s)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, LoadTypes(ctx, NewPool(db), reg, "MY_ENUM", "mytext", "citext", "email"))
	assert.False(t, reg.Sealed())

	et, err := reg.Enum("my_enum")
	require.NoError(t, err)
	assert.Equal(t, []string{"state1", "state2", "state3"}, et.Members())

	c, err := reg.LookupOID(16390)
	require.NoError(t, err)
	assert.Equal(t, "my_enum", c.TypeName())
	c, err = reg.LookupOID(16389)
	require.NoError(t, err)
	assert.Equal(t, "_my_enum", c.TypeName())
	assert.Equal(t, oid.Oid(16389), c.OID())

	dt, err := reg.Domain("mytext")
	require.NoError(t, err)
	assert.Equal(t, "text", dt.Base())
	assert.Equal(t, CompareDefault, dt.Comparison())

	ci, err := reg.Domain("citext")
	require.NoError(t, err)
	assert.Equal(t, CompareCaseInsensitive, ci.Comparison())

	email, err := reg.Domain("email")
	require.NoError(t, err)
	assert.Equal(t, CompareCaseInsensitive, email.Comparison())

	// loaded names are skipped without touching the database
	n := s.queries
	require.NoError(t, LoadTypes(ctx, NewPool(db), reg, "my_enum", "citext"))
	assert.Equal(t, n, s.queries)

	NewExecutor(reg)
	require.NoError(t, LoadTypes(ctx, NewPool(db), reg, "mytext"))
	err = LoadTypes(ctx, NewPool(db), reg, "point3")
	assert.True(t, errors.Is(err, ErrRegistrySealed))
}

func TestLoadTypes_Errors(t *testing.T) {
	s := &catalogSession{types: append([]catalogType{
		{id: 17000, arrayID: 16999, name: "dup", typtype: "e"},
		{id: 17010, arrayID: 17009, name: "dup", typtype: "e"},
	}, table1Catalog...)}
	db := newCatalogDB(t, s)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	err := LoadTypes(ctx, NewPool(db), NewRegistry(), "my_enum", "missing")
	assert.True(t, errors.Is(err, ErrUnregisteredType))

	err = LoadTypes(ctx, NewPool(db), NewRegistry(), "point3")
	assert.True(t, errors.Is(err, ErrInvalidType))

	err = LoadTypes(ctx, NewPool(db), NewRegistry(), "dup")
	assert.True(t, errors.Is(err, ErrDuplicateType))

	reg := NewRegistry()
	require.NoError(t, reg.RegisterEnum(MustEnumType("other", "a"), 16390, 0))
	err = LoadTypes(ctx, NewPool(db), reg, "my_enum")
	assert.True(t, errors.Is(err, ErrDuplicateType), "oid already taken")
}

func TestLoadTypes_RepeatedNames(t *testing.T) {
	s := &catalogSession{types: table1Catalog}
	db := newCatalogDB(t, s)
	defer func() { _ = db.Close() }()

	reg := NewRegistry()
	require.NoError(t, LoadTypes(context.Background(), NewPool(db), reg, "my_enum", "MY_ENUM", "mytext", "my_enum"))
	et, err := reg.Enum("my_enum")
	require.NoError(t, err)
	assert.Equal(t, []string{"state1", "state2", "state3"}, et.Members())
	_, err = reg.Domain("mytext")
	assert.NoError(t, err)
}

func TestLoadTypes_FailureRegistersNothing(t *testing.T) {
	s := &catalogSession{types: table1Catalog}
	db := newCatalogDB(t, s)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	reg := NewRegistry()
	err := LoadTypes(ctx, NewPool(db), reg, "my_enum", "mytext", "point3")
	assert.True(t, errors.Is(err, ErrInvalidType))
	_, err = reg.Lookup("my_enum")
	assert.True(t, errors.Is(err, ErrUnregisteredType))
	_, err = reg.Lookup("mytext")
	assert.True(t, errors.Is(err, ErrUnregisteredType))

	require.NoError(t, reg.RegisterEnum(MustEnumType("other", "a"), 16395, 0))
	err = LoadTypes(ctx, NewPool(db), reg, "my_enum", "mytext")
	assert.True(t, errors.Is(err, ErrDuplicateType), "mytext oid already taken")
	_, err = reg.Lookup("my_enum")
	assert.True(t, errors.Is(err, ErrUnregisteredType))
	_, err = reg.LookupOID(16390)
	assert.True(t, errors.Is(err, ErrUnregisteredType))

	require.NoError(t, LoadTypes(ctx, NewPool(db), reg, "my_enum", "citext"))
}

func TestTableColumnsAndVerifyShape(t *testing.T) {
	s := &catalogSession{types: table1Catalog, columns: map[string][]TableColumn{"table1": table1Columns}}
	db := newCatalogDB(t, s)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, LoadTypes(ctx, NewPool(db), reg, "my_enum", "mytext", "citext"))

	cols, err := TableColumns(ctx, NewPool(db), reg, "table1")
	require.NoError(t, err)
	assert.Equal(t, table1Columns, cols)

	assert.NoError(t, VerifyShape(reg, cols, ShapeFromColumns(cols)))
	assert.NoError(t, VerifyShape(reg, cols, table1Shape))
	assert.NoError(t, VerifyShape(reg, cols, Shape{Optional("absent", "text")}))

	err = VerifyShape(reg, cols, Shape{
		Required("absent", "text"),
		NotNull("text", "text"),
		Required("myenum", "mytext"),
		Required("citext", "nope"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.True(t, errors.Is(err, ErrUnregisteredType))
	assert.Contains(t, err.Error(), "absent, text, myenum, citext")
	var ce *ColumnError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "absent", ce.Column)
}
