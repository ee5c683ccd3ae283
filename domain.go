package xpg

import (
	"database/sql/driver"

	"github.com/lib/pq/oid"
)

// DomainCodec transmits domain values exactly like their underlying text,
// but decodes them as [KindDomain] values tagged with the domain name.
type DomainCodec struct {
	typ *DomainType
	id  oid.Oid
}

// NewDomainCodec returns a codec for t. id may be zero when the type OID is
// not known.
func NewDomainCodec(t *DomainType, id oid.Oid) *DomainCodec {
	return &DomainCodec{typ: t, id: id}
}

func (c *DomainCodec) TypeName() string { return c.typ.name }
func (c *DomainCodec) OID() oid.Oid     { return c.id }

// Type returns the domain descriptor.
func (c *DomainCodec) Type() *DomainType { return c.typ }

// Encode accepts a domain value of this type or plain text. The database
// performs the text to domain conversion.
func (c *DomainCodec) Encode(v Value) (driver.Value, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindDomain:
		if v.typ != c.typ.name {
			return nil, encodeErr(c.typ.name, "cannot encode value of domain %s", v.typ)
		}
		return v.str, nil
	case KindText:
		return v.str, nil
	}
	return nil, encodeErr(c.typ.name, "cannot encode %s value", v.Kind())
}

func (c *DomainCodec) Decode(src any) (Value, error) {
	if src == nil {
		return Null(), nil
	}
	s, ok := textOf(src)
	if !ok {
		return Value{}, decodeErr(nil, c.typ.name, "unsupported source %T", src)
	}
	return c.typ.Wrap(s), nil
}
