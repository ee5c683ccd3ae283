package xpg

import (
	"fmt"
	"strings"

	"xorkevin.dev/kerrors"
)

// EnumType describes a PostgreSQL enum: a name and its ordered, unique
// member labels. An EnumType is immutable.
type EnumType struct {
	name    string
	members []string
	index   map[string]int
}

// NewEnumType validates and returns an enum descriptor.
func NewEnumType(name string, members ...string) (*EnumType, error) {
	name = normalizeTypeName(name)
	if name == "" {
		return nil, kerrors.WithKind(nil, ErrInvalidType, "Enum type name is empty")
	}
	if len(members) == 0 {
		return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Enum type %s has no members", name))
	}
	t := &EnumType{
		name:    name,
		members: make([]string, 0, len(members)),
		index:   make(map[string]int, len(members)),
	}
	for _, m := range members {
		if m == "" {
			return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Enum type %s has an empty member", name))
		}
		if _, ok := t.index[m]; ok {
			return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Enum type %s has duplicate member %q", name, m))
		}
		t.index[m] = len(t.members)
		t.members = append(t.members, m)
	}
	return t, nil
}

// MustEnumType is like [NewEnumType] but panics on an invalid descriptor. It
// is intended for package-level declarations.
func MustEnumType(name string, members ...string) *EnumType {
	t, err := NewEnumType(name, members...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *EnumType) Name() string { return t.name }

// Members returns a copy of the member labels in declaration order.
func (t *EnumType) Members() []string {
	return append([]string(nil), t.members...)
}

// Has reports whether member is declared by t. Labels are case-sensitive.
func (t *EnumType) Has(member string) bool {
	_, ok := t.index[member]
	return ok
}

// Value returns the enum value for member.
func (t *EnumType) Value(member string) (Value, error) {
	if !t.Has(member) {
		return Value{}, kerrors.WithKind(nil, ErrUnknownEnumMember, fmt.Sprintf("%q is not a member of %s", member, t.name))
	}
	return Value{kind: KindEnum, typ: t.name, str: member}, nil
}

// MustValue is like [EnumType.Value] but panics for non-members.
func (t *EnumType) MustValue(member string) Value {
	v, err := t.Value(member)
	if err != nil {
		panic(err)
	}
	return v
}

// Comparison is the equality rule a domain type applies in the database.
type Comparison int

const (
	CompareDefault Comparison = iota
	CompareCaseInsensitive
)

func (c Comparison) String() string {
	switch c {
	case CompareCaseInsensitive:
		return "case-insensitive"
	default:
		return "default"
	}
}

// DomainType describes a text subtype such as a CREATE DOMAIN over text or
// the citext extension type. Values travel as plain text on the wire.
type DomainType struct {
	name   string
	base   string
	policy Comparison
}

// NewDomainType validates and returns a domain descriptor. base must be a
// text family type.
func NewDomainType(name string, base string, policy Comparison) (*DomainType, error) {
	name = normalizeTypeName(name)
	base = normalizeTypeName(base)
	if name == "" {
		return nil, kerrors.WithKind(nil, ErrInvalidType, "Domain type name is empty")
	}
	if !isTextFamily(base) {
		return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Domain type %s has non-text base type %q", name, base))
	}
	return &DomainType{name: name, base: base, policy: policy}, nil
}

// MustDomainType is like [NewDomainType] but panics on an invalid descriptor.
func MustDomainType(name string, base string, policy Comparison) *DomainType {
	t, err := NewDomainType(name, base, policy)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *DomainType) Name() string           { return t.name }
func (t *DomainType) Base() string           { return t.base }
func (t *DomainType) Comparison() Comparison { return t.policy }

// Wrap tags s as a value of this domain.
func (t *DomainType) Wrap(s string) Value {
	return Value{kind: KindDomain, typ: t.name, str: s}
}

// Text returns s as a [DomainText] of this domain.
func (t *DomainType) Text(s string) DomainText {
	return DomainText{typ: t.name, text: s}
}

func isTextFamily(name string) bool {
	switch name {
	case "text", "varchar", "bpchar", "name", "citext":
		return true
	}
	return false
}

// normalizeTypeName lower-cases a type name and strips the pg_catalog and
// public schema qualifiers.
func normalizeTypeName(name string) string {
	name = strings.TrimSpace(toLowerAscii(name))
	name = strings.TrimPrefix(name, "pg_catalog.")
	name = strings.TrimPrefix(name, "public.")
	return name
}
