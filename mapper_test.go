package xpg

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ---------------------------
   Tests: string/lower/quotes
----------------------------*/

func TestNormalizeAndLower(t *testing.T) {
	cases := map[string]string{
		`"Name"`:        "name",
		"`Camel`":       "`camel`",
		"[UPPER]":       "[upper]",
		"already_ok":    "already_ok",
		"MiXeD_123":     "mixed_123",
		`"unterminated`: `"unterminated`, // not trimmed; just lower
	}
	for in, want := range cases {
		if got := normalizeColAscii(in); got != want {
			t.Fatalf("normalize %q got %q want %q", in, got, want)
		}
	}
	if toLowerAscii("lower") != "lower" {
		t.Fatal("toLowerAscii changed already-lower")
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag string
		exp tagOpts
	}{
		{"", tagOpts{}},
		{"-", tagOpts{omit: true}},
		{"col", tagOpts{name: "col"}},
		{",inline", tagOpts{inline: true}},
		{"col,inline", tagOpts{name: "col", inline: true}},
		{"inline,col", tagOpts{name: "col", inline: true}},
		{"myenum,type=my_enum", tagOpts{name: "myenum", typ: "my_enum"}},
		{",type=citext", tagOpts{typ: "citext"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.exp, parseTag(tc.tag), "parseTag %q", tc.tag)
	}
}

/* ---------------------------
   Struct index & cache
----------------------------*/

func TestBuildStructIndex_InlineAndAnonymous(t *testing.T) {
	type Embedded struct {
		Inner string `db:"inner"`
	}
	type Outer struct {
		ID       int    `db:"id"`
		Embedded        // anonymous → treated as inline
		Skip     string `db:"-"`
		Dom      DomainText `db:"dom,type=mytext"`
		unexp    int    // unexported non-anonymous → ignored
	}
	_ = Outer{unexp: 1}

	fi := buildStructIndex(reflect.TypeOf(Outer{}))
	for _, name := range []string{"id", "inner", "dom"} {
		_, ok := fi.byName[name]
		assert.True(t, ok, "%s missing", name)
	}
	for _, name := range []string{"skip", "unexp", "typ", "text"} {
		_, ok := fi.byName[name]
		assert.False(t, ok, "%s should not be indexed", name)
	}
	assert.Equal(t, "mytext", fi.fields[fi.byName["dom"]].typ)
}

func TestStructIndexAndShapeCacheReuse(t *testing.T) {
	type S struct {
		A int `db:"a"`
	}
	m := NewMapper()

	rt := reflect.TypeOf(S{})
	assert.Same(t, m.structIndex(rt), m.structIndex(rt), "structIndexCache not reused")

	s1, err := m.shapeOf(rt)
	require.NoError(t, err)
	s2, err := m.shapeOf(rt)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestGetMapper_Lazy(t *testing.T) {
	m1 := getMapper()
	m2 := getMapper()
	if m1 == nil || m1 != m2 {
		t.Fatal("getMapper not lazy/singleton")
	}
}

/* ---------------------------
   Shapes
----------------------------*/

func TestShapeOf(t *testing.T) {
	type Base struct {
		ID uuid.UUID `db:"table1_id"`
	}
	type Row struct {
		Base       `db:",inline"`
		Text       string      `db:"text"`
		TextNull   *string     `db:"text_null"`
		Citext     DomainText  `db:"citext,type=citext"`
		CitextNull *DomainText `db:"citext_null,type=citext"`
		MyEnum     string      `db:"myenum,type=my_enum"`
		Count      int32
		Ratio      float64     `db:"ratio"`
		Tags       []string    `db:"tags"`
		Enums      []string    `db:"enums,type=_my_enum"`
		Raw        Value       `db:"raw,type=int8"`
	}

	shape, err := ShapeOf[Row]()
	require.NoError(t, err)
	assert.Equal(t, Shape{
		NotNull("table1_id", "uuid"),
		NotNull("text", "text"),
		Optional("text_null", "text"),
		NotNull("citext", "citext"),
		Optional("citext_null", "citext"),
		NotNull("myenum", "my_enum"),
		NotNull("count", "int4"),
		NotNull("ratio", "float8"),
		Required("tags", "_text"),
		Required("enums", "_my_enum"),
		Required("raw", "int8"),
	}, shape)
}

func TestShapeOf_ReturnsCopy(t *testing.T) {
	type owned struct {
		Text   string `db:"text"`
		MyEnum string `db:"myenum,type=my_enum"`
	}
	first, err := ShapeOf[owned]()
	require.NoError(t, err)
	first[0].Type = "int8"
	first[1].NotNull = false

	again, err := ShapeOf[owned]()
	require.NoError(t, err)
	assert.Equal(t, Shape{NotNull("text", "text"), NotNull("myenum", "my_enum")}, again)
	again[0].Name = "other"

	third, err := ShapeOf[owned]()
	require.NoError(t, err)
	assert.Equal(t, "text", third[0].Name)
}

func TestShapeOf_Errors(t *testing.T) {
	type NoType struct {
		D DomainText `db:"d"`
	}
	_, err := ShapeOf[NoType]()
	assert.True(t, errors.Is(err, ErrInvalidType), "DomainText needs a type")

	_, err = ShapeOf[int]()
	assert.True(t, errors.Is(err, ErrInvalidType), "non-struct")
}

/* ---------------------------
   Decode
----------------------------*/

func TestDecode_Struct(t *testing.T) {
	reg := testRegistry(t)
	type item struct {
		ID         uuid.UUID   `db:"table1_id"`
		Text       string      `db:"text"`
		TextNull   *string     `db:"text_null"`
		MyText     DomainText  `db:"mytext,type=mytext"`
		MyTextNull *DomainText `db:"mytext_null,type=mytext"`
		MyEnum     string      `db:"myenum,type=my_enum"`
		MyEnumNull *string     `db:"myenum_null,type=my_enum"`
		Enums      []string    `db:"enums,type=_my_enum"`
		Small      int8        `db:"small,type=int8"`
	}
	shape, err := ShapeOf[item]()
	require.NoError(t, err)

	id := uuid.New()
	rec, err := Bind(reg, Row{
		"table1_id":   []byte(id.String()),
		"text":        []byte("a"),
		"text_null":   nil,
		"mytext":      []byte("Mixed"),
		"mytext_null": []byte("m2"),
		"myenum":      []byte("state1"),
		"myenum_null": nil,
		"enums":       []byte("{state2,state3}"),
		"small":       int64(-5),
	}, shape)
	require.NoError(t, err)

	got, err := Decode[item](rec)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "a", got.Text)
	assert.Nil(t, got.TextNull)
	assert.Equal(t, "Mixed", got.MyText.Unwrap())
	require.NotNil(t, got.MyTextNull)
	assert.Equal(t, "m2", got.MyTextNull.Unwrap())
	assert.Equal(t, "state1", got.MyEnum)
	assert.Nil(t, got.MyEnumNull)
	assert.Equal(t, []string{"state2", "state3"}, got.Enums)
	assert.Equal(t, int8(-5), got.Small)
}

func TestDecode_DomainIntoStringFails(t *testing.T) {
	reg := testRegistry(t)
	type item struct {
		Citext string `db:"citext"`
	}
	rec, err := Bind(reg, Row{"citext": []byte("x")}, Shape{Required("citext", "citext")})
	require.NoError(t, err)

	_, err = Decode[item](rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnDecode))
	var ce *ColumnError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "citext", ce.Column)
}

func TestAssignValue(t *testing.T) {
	var i8 int8
	err := assignValue(reflect.ValueOf(&i8).Elem(), Int(math.MaxInt8+1))
	assert.Error(t, err, "overflow")

	var u uint16
	err = assignValue(reflect.ValueOf(&u).Elem(), Int(-1))
	assert.Error(t, err, "negative into unsigned")

	var s string
	err = assignValue(reflect.ValueOf(&s).Elem(), Null())
	assert.True(t, errors.Is(err, ErrUnexpectedNull))

	var d DomainText
	err = assignValue(reflect.ValueOf(&d).Elem(), Text("x"))
	assert.Error(t, err, "text into DomainText")

	var xs []int64
	err = assignValue(reflect.ValueOf(&xs).Elem(), Array("int8", Int(1), Null()))
	var ee *ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Index)

	var ps []*int64
	require.NoError(t, assignValue(reflect.ValueOf(&ps).Elem(), Array("int8", Int(1), Null())))
	require.Len(t, ps, 2)
	assert.Equal(t, int64(1), *ps[0])
	assert.Nil(t, ps[1])

	var v Value
	require.NoError(t, assignValue(reflect.ValueOf(&v).Elem(), Null()))
	assert.True(t, v.IsNull())
}

/* ---------------------------
   Params
----------------------------*/

func TestToParam(t *testing.T) {
	id := uuid.New()
	n := int64(3)
	var nilp *string
	dt := MustDomainType("mytext", "text", CompareDefault)

	for _, tc := range []struct {
		Name string
		Arg  any
		Exp  Param
	}{
		{"nil", nil, Param{}},
		{"nil pointer", nilp, Param{}},
		{"string", "a", Param{Value: Text("a")}},
		{"int", 7, Param{Value: Int(7)}},
		{"pointer", &n, Param{Value: Int(3)}},
		{"uint8", uint8(200), Param{Value: Int(200)}},
		{"float32", float32(0.5), Param{Value: Float(0.5)}},
		{"uuid", id, Param{Value: UUID(id)}},
		{"domain text", dt.Text("x"), Param{Value: dt.Wrap("x")}},
		{"value", Bool(true), Param{Value: Bool(true)}},
		{"param", Typed("my_enum", Text("state1")), Param{Type: "my_enum", Value: Text("state1")}},
		{"slice", []string{"a"}, Param{Value: Array("text", Text("a"))}},
		{"nil slice", []string(nil), Param{}},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			p, err := toParam(tc.Arg)
			require.NoError(t, err)
			assert.Equal(t, tc.Exp.Type, p.Type)
			assert.True(t, tc.Exp.Value.Equal(p.Value), "want %s got %s", tc.Exp.Value, p.Value)
		})
	}

	_, err := toParam(uint64(math.MaxUint64))
	assert.True(t, errors.Is(err, ErrEncode))
	_, err = toParam(map[string]int{})
	assert.True(t, errors.Is(err, ErrEncode))
	_, err = toParam([]byte("raw"))
	assert.True(t, errors.Is(err, ErrEncode), "bytea is not supported")
}

func TestFieldByPathAlloc(t *testing.T) {
	type Inner struct{ P *int }
	type Outer struct{ I *Inner }
	rv := reflect.New(reflect.TypeOf(Outer{})).Elem()
	dst := fieldByPathAlloc(rv, []int{0, 0}) // Outer.I.P
	if dst.Kind() != reflect.Ptr || !dst.IsNil() {
		t.Fatal("fieldByPathAlloc must allocate the parent but not the final pointer")
	}
	if rv.Field(0).IsNil() {
		t.Fatal("fieldByPathAlloc did not allocate the embedded pointer")
	}
}
