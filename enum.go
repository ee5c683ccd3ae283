package xpg

import (
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq/oid"
	"xorkevin.dev/kerrors"
)

// EnumCodec encodes enum values as their member label, which is how
// PostgreSQL transmits enums in the text format.
type EnumCodec struct {
	typ *EnumType
	id  oid.Oid
}

// NewEnumCodec returns a codec for t. id may be zero when the type OID is
// not known.
func NewEnumCodec(t *EnumType, id oid.Oid) *EnumCodec {
	return &EnumCodec{typ: t, id: id}
}

func (c *EnumCodec) TypeName() string { return c.typ.name }
func (c *EnumCodec) OID() oid.Oid     { return c.id }

// Type returns the enum descriptor.
func (c *EnumCodec) Type() *EnumType { return c.typ }

// Encode accepts an enum value of this type, or text naming a member.
func (c *EnumCodec) Encode(v Value) (driver.Value, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindEnum:
		if v.typ != c.typ.name {
			return nil, encodeErr(c.typ.name, "cannot encode value of enum %s", v.typ)
		}
		return v.str, nil
	case KindText:
		if !c.typ.Has(v.str) {
			return nil, kerrors.WithKind(
				kerrors.WithKind(nil, ErrUnknownEnumMember, fmt.Sprintf("%q is not a member of %s", v.str, c.typ.name)),
				ErrEncode, fmt.Sprintf("Failed encoding %s", c.typ.name))
		}
		return v.str, nil
	}
	return nil, encodeErr(c.typ.name, "cannot encode %s value", v.Kind())
}

// Decode fails with [ErrUnknownEnumMember] for labels the descriptor does
// not declare.
func (c *EnumCodec) Decode(src any) (Value, error) {
	if src == nil {
		return Null(), nil
	}
	s, ok := textOf(src)
	if !ok {
		return Value{}, decodeErr(nil, c.typ.name, "unsupported source %T", src)
	}
	v, err := c.typ.Value(s)
	if err != nil {
		return Value{}, decodeErr(err, c.typ.name, "unexpected label")
	}
	return v, nil
}
