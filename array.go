package xpg

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq"
	"github.com/lib/pq/oid"
	"xorkevin.dev/kerrors"
)

// ArrayCodec handles one-dimensional PostgreSQL arrays of a single element
// type in the text array format, for example {open,closed,NULL}.
type ArrayCodec struct {
	elem Codec
	id   oid.Oid
}

// NewArrayCodec composes elem into an array codec. id is the array type OID
// and may be zero.
func NewArrayCodec(elem Codec, id oid.Oid) *ArrayCodec {
	return &ArrayCodec{elem: elem, id: id}
}

// TypeName follows the pg_type convention of an underscore prefix.
func (c *ArrayCodec) TypeName() string { return "_" + c.elem.TypeName() }
func (c *ArrayCodec) OID() oid.Oid     { return c.id }

// Elem returns the element codec.
func (c *ArrayCodec) Elem() Codec { return c.elem }

// Encode accepts an array value. Each element is encoded by the element
// codec, so element type rules are enforced per element.
func (c *ArrayCodec) Encode(v Value) (driver.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	elems, ok := v.Elems()
	if !ok {
		return nil, encodeErr(c.TypeName(), "cannot encode %s value", v.Kind())
	}
	out := make([]sql.NullString, len(elems))
	for i, e := range elems {
		if e.Kind() == KindArray {
			return nil, encodeErr(c.TypeName(), "nested arrays are not supported")
		}
		ns, err := c.encodeElem(e)
		if err != nil {
			return nil, kerrors.WithKind(&ElementError{Index: i, Err: err}, ErrEncode, fmt.Sprintf("Failed encoding %s", c.TypeName()))
		}
		out[i] = ns
	}
	return pq.GenericArray{A: out}.Value()
}

func (c *ArrayCodec) encodeElem(e Value) (sql.NullString, error) {
	dv, err := c.elem.Encode(e)
	if err != nil {
		return sql.NullString{}, err
	}
	s, valid, err := arrayElementText(c.elem.TypeName(), dv)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: valid}, nil
}

// Decode returns [Null] for a null column and an empty array for {}. It
// fails on the first element the element codec rejects, reporting its
// position.
func (c *ArrayCodec) Decode(src any) (Value, error) {
	if src == nil {
		return Null(), nil
	}
	if _, ok := textOf(src); !ok {
		return Value{}, decodeErr(nil, c.TypeName(), "unsupported source %T", src)
	}
	var raw []sql.NullString
	if err := (pq.GenericArray{A: &raw}).Scan(src); err != nil {
		return Value{}, decodeErr(err, c.TypeName(), "malformed array")
	}
	elems := make([]Value, len(raw))
	for i, r := range raw {
		var s any
		if r.Valid {
			s = r.String
		}
		e, err := c.elem.Decode(s)
		if err != nil {
			return Value{}, decodeErr(&ElementError{Index: i, Err: err}, c.TypeName(), "element %d", i)
		}
		elems[i] = e
	}
	return Value{kind: KindArray, typ: c.elem.TypeName(), elems: elems}, nil
}
