package xpg

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
	assert.True(t, v.Equal(Null()))
	assert.Equal(t, "NULL", v.String())
}

func TestValue_Accessors(t *testing.T) {
	assert := assert.New(t)

	s, ok := Text("hi").AsText()
	assert.True(ok)
	assert.Equal("hi", s)

	_, ok = Text("hi").AsInt()
	assert.False(ok, "text is not an int")

	n, ok := Int(-3).AsInt()
	assert.True(ok)
	assert.Equal(int64(-3), n)

	b, ok := Bool(true).AsBool()
	assert.True(ok)
	assert.True(b)

	f, ok := Float(1.5).AsFloat()
	assert.True(ok)
	assert.Equal(1.5, f)

	id := uuid.New()
	got, ok := UUID(id).AsUUID()
	assert.True(ok)
	assert.Equal(id, got)
}

func TestValue_DomainIsNotText(t *testing.T) {
	dt := MustDomainType("mytext", "text", CompareDefault)
	v := dt.Wrap("Hello")

	_, ok := v.AsText()
	assert.False(t, ok, "domain values must be unwrapped explicitly")

	d, ok := v.AsDomain()
	require.True(t, ok)
	assert.Equal(t, "mytext", d.Type())
	assert.Equal(t, "Hello", d.Unwrap())
	assert.True(t, d.AsValue().Equal(v))
	assert.True(t, DomainText{}.AsValue().IsNull())
	assert.Equal(t, d, dt.Text("Hello"))
}

func TestValue_Equal(t *testing.T) {
	st := MustEnumType("status", "open", "closed")
	other := MustEnumType("other", "open")

	for _, tc := range []struct {
		Name string
		A, B Value
		Exp  bool
	}{
		{"same text", Text("a"), Text("a"), true},
		{"different text", Text("a"), Text("b"), false},
		{"text vs enum", Text("open"), st.MustValue("open"), false},
		{"enum of other type", st.MustValue("open"), other.MustValue("open"), false},
		{"nan", Float(math.NaN()), Float(math.NaN()), true},
		{"empty array vs null", Array("text"), Null(), false},
		{"arrays", Array("status", st.MustValue("open"), Null()), Array("status", st.MustValue("open"), Null()), true},
		{"array order", Array("text", Text("a"), Text("b")), Array("text", Text("b"), Text("a")), false},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Exp, tc.A.Equal(tc.B))
		})
	}
}

func TestArray_EmptyIsNotNull(t *testing.T) {
	v := Array("text")
	assert.False(t, v.IsNull())
	elems, ok := v.Elems()
	assert.True(t, ok)
	assert.NotNil(t, elems)
	assert.Len(t, elems, 0)
}

func TestEnumType_Validation(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Type    string
		Members []string
	}{
		{"empty name", "", []string{"a"}},
		{"no members", "e", nil},
		{"empty member", "e", []string{"a", ""}},
		{"duplicate member", "e", []string{"a", "a"}},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			_, err := NewEnumType(tc.Type, tc.Members...)
			assert.True(t, errors.Is(err, ErrInvalidType))
		})
	}

	et, err := NewEnumType("Public.Status", "open", "closed")
	require.NoError(t, err)
	assert.Equal(t, "status", et.Name())
	assert.Equal(t, []string{"open", "closed"}, et.Members())

	_, err = et.Value("OPEN")
	assert.True(t, errors.Is(err, ErrUnknownEnumMember), "labels are case-sensitive")
}

func TestDomainType_Validation(t *testing.T) {
	_, err := NewDomainType("d", "int4", CompareDefault)
	assert.True(t, errors.Is(err, ErrInvalidType))

	_, err = NewDomainType("", "text", CompareDefault)
	assert.True(t, errors.Is(err, ErrInvalidType))

	dt, err := NewDomainType("email", "pg_catalog.citext", CompareCaseInsensitive)
	require.NoError(t, err)
	assert.Equal(t, "citext", dt.Base())
	assert.Equal(t, CompareCaseInsensitive, dt.Comparison())
	assert.Equal(t, "case-insensitive", dt.Comparison().String())
}
