package xpg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind tags the variant held by a [Value].
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindBool
	KindInt
	KindFloat
	KindUUID
	KindEnum
	KindDomain
	KindArray
)

var kindNames = [...]string{
	KindNull:   "null",
	KindText:   "text",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindUUID:   "uuid",
	KindEnum:   "enum",
	KindDomain: "domain",
	KindArray:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a decoded or to-be-encoded database value.
//
// The zero Value is null. Enum values are only produced by [EnumType.Value]
// and domain values only by [DomainType.Wrap], so an enum Value always holds a
// declared member of its type. Array values remember their element type name;
// an empty array is not null.
type Value struct {
	kind  Kind
	typ   string
	str   string
	num   int64
	flt   float64
	flag  bool
	id    uuid.UUID
	elems []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Int returns an integer value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// UUID returns a uuid value.
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, id: id} }

// Array returns an array value of the named element type. Calling it with no
// elements yields an empty array, which is distinct from [Null].
//
// Elements are not checked against elemType here. The array codec checks
// each element when the value is encoded and reports the first mismatch as
// an [ElementError].
func Array(elemType string, elems ...Value) Value {
	out := make([]Value, len(elems))
	copy(out, elems)
	return Value{kind: KindArray, typ: normalizeTypeName(elemType), elems: out}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// TypeName is the enum or domain type name, or the element type name of an
// array. It is empty for other kinds.
func (v Value) TypeName() string { return v.typ }

// AsText returns the payload of a text value. Domain values are not text;
// use [Value.AsDomain] and unwrap explicitly.
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.flt, true
}

func (v Value) AsUUID() (uuid.UUID, bool) {
	if v.kind != KindUUID {
		return uuid.Nil, false
	}
	return v.id, true
}

// AsEnum returns the member name of an enum value.
func (v Value) AsEnum() (string, bool) {
	if v.kind != KindEnum {
		return "", false
	}
	return v.str, true
}

// AsDomain returns the wrapped text of a domain value.
func (v Value) AsDomain() (DomainText, bool) {
	if v.kind != KindDomain {
		return DomainText{}, false
	}
	return DomainText{typ: v.typ, text: v.str}, true
}

// Elems returns the elements of an array value. The returned slice must not
// be modified.
func (v Value) Elems() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.elems, true
}

// Equal reports whether v and o hold the same variant, type name and payload.
// Floating point NaNs compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.typ != o.typ {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText, KindEnum, KindDomain:
		return v.str == o.str
	case KindBool:
		return v.flag == o.flag
	case KindInt:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt || (math.IsNaN(v.flt) && math.IsNaN(o.flt))
	case KindUUID:
		return v.id == o.id
	case KindArray:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindText:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindUUID:
		return v.id.String()
	case KindEnum, KindDomain:
		return fmt.Sprintf("%s(%q)", v.typ, v.str)
	case KindArray:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.String()
		}
		return v.typ + "[" + strings.Join(parts, ", ") + "]"
	}
	return v.kind.String()
}

// DomainText is text belonging to a domain type. The database applies the
// domain's comparison rules; client code reaches the raw text only through
// [DomainText.Unwrap].
type DomainText struct {
	typ  string
	text string
}

// Type is the domain type name.
func (d DomainText) Type() string { return d.typ }

// Unwrap returns the underlying text.
func (d DomainText) Unwrap() string { return d.text }

// AsValue converts d back into a domain [Value].
func (d DomainText) AsValue() Value {
	if d.typ == "" {
		return Null()
	}
	return Value{kind: KindDomain, typ: d.typ, str: d.text}
}
