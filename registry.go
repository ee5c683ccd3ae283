package xpg

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lib/pq/oid"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

// Registry maps PostgreSQL type names and OIDs to codecs.
//
// All registration happens before the first statement. [Registry.Seal]
// (called by [NewExecutor]) freezes the registry; afterwards it is read-only
// and safe for any number of concurrent readers without locking.
type Registry struct {
	codecs    map[string]Codec
	byOID     map[oid.Oid]string
	arrayOIDs map[string]oid.Oid
	sealed    atomic.Bool
	log       *zap.Logger
}

// NewRegistry returns a registry holding the builtin scalar codecs.
func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	r := &Registry{
		codecs:    map[string]Codec{},
		byOID:     map[oid.Oid]string{},
		arrayOIDs: map[string]oid.Oid{},
		log:       o.log,
	}
	for _, c := range builtinCodecs() {
		r.codecs[c.TypeName()] = c
		r.byOID[c.OID()] = c.TypeName()
		if a, ok := builtinArrayOIDs[c.OID()]; ok {
			r.arrayOIDs[c.TypeName()] = a
			r.byOID[a] = "_" + c.TypeName()
		}
	}
	return r
}

// Register adds c under its type name. Array types are never registered
// directly; use [Registry.LookupArrayOf].
func (r *Registry) Register(c Codec) error {
	return r.register(c, 0)
}

// RegisterEnum registers an [EnumCodec] for t. Either OID may be zero.
func (r *Registry) RegisterEnum(t *EnumType, id, arrayID oid.Oid) error {
	return r.register(NewEnumCodec(t, id), arrayID)
}

// RegisterDomain registers a [DomainCodec] for t. Either OID may be zero.
func (r *Registry) RegisterDomain(t *DomainType, id, arrayID oid.Oid) error {
	return r.register(NewDomainCodec(t, id), arrayID)
}

func (r *Registry) register(c Codec, arrayID oid.Oid) error {
	return r.registerAll([]registration{{codec: c, arrayID: arrayID}})
}

// registration is a codec with the OID of its array type.
type registration struct {
	codec   Codec
	arrayID oid.Oid
}

// registerAll validates every registration against the registry and each
// other, then stores all of them. On error nothing is stored.
func (r *Registry) registerAll(regs []registration) error {
	names := make(map[string]struct{}, len(regs))
	oids := map[oid.Oid]string{}
	taken := func(id oid.Oid) (string, bool) {
		if prev, ok := r.byOID[id]; ok {
			return prev, true
		}
		prev, ok := oids[id]
		return prev, ok
	}
	for _, g := range regs {
		name := normalizeTypeName(g.codec.TypeName())
		if r.sealed.Load() {
			return kerrors.WithKind(nil, ErrRegistrySealed, fmt.Sprintf("Cannot register type %s", name))
		}
		if name == "" || strings.HasPrefix(name, "_") || strings.HasSuffix(name, "[]") {
			return kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Invalid type name %q", g.codec.TypeName()))
		}
		_, dup := names[name]
		if _, ok := r.codecs[name]; ok || dup {
			return kerrors.WithKind(nil, ErrDuplicateType, fmt.Sprintf("Type %s already registered", name))
		}
		names[name] = struct{}{}
		id := g.codec.OID()
		if id != 0 {
			if prev, ok := taken(id); ok {
				return kerrors.WithKind(nil, ErrDuplicateType, fmt.Sprintf("OID %d of type %s already registered as %s", id, name, prev))
			}
			oids[id] = name
		}
		if g.arrayID != 0 {
			if prev, ok := taken(g.arrayID); ok || g.arrayID == id {
				return kerrors.WithKind(nil, ErrDuplicateType, fmt.Sprintf("Array OID %d of type %s already registered as %s", g.arrayID, name, prev))
			}
			oids[g.arrayID] = "_" + name
		}
	}
	for _, g := range regs {
		r.store(g.codec, g.arrayID)
	}
	return nil
}

func (r *Registry) store(c Codec, arrayID oid.Oid) {
	name := normalizeTypeName(c.TypeName())
	if id := c.OID(); id != 0 {
		r.byOID[id] = name
	}
	if arrayID != 0 {
		r.byOID[arrayID] = "_" + name
		r.arrayOIDs[name] = arrayID
	}
	r.codecs[name] = c
	r.log.Debug("Registered type",
		zap.String("type", name),
		zap.Uint32("oid", uint32(c.OID())),
		zap.Uint32("array_oid", uint32(arrayID)))
}

// Seal makes the registry read-only. It is idempotent.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether [Registry.Seal] has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the codec for name. Array names in either the _elem or the
// elem[] spelling resolve through [Registry.LookupArrayOf].
func (r *Registry) Lookup(name string) (Codec, error) {
	n := normalizeTypeName(name)
	if elem, ok := arrayElemName(n); ok {
		return r.LookupArrayOf(elem)
	}
	c, ok := r.codecs[n]
	if !ok {
		return nil, kerrors.WithKind(nil, ErrUnregisteredType, fmt.Sprintf("Type %s is not registered", name))
	}
	return c, nil
}

// LookupArrayOf synthesizes a one-dimensional array codec over the
// registered element type elem.
func (r *Registry) LookupArrayOf(elem string) (Codec, error) {
	n := normalizeTypeName(elem)
	c, ok := r.codecs[n]
	if !ok {
		return nil, kerrors.WithKind(nil, ErrUnregisteredElementType, fmt.Sprintf("Array element type %s is not registered", elem))
	}
	return NewArrayCodec(c, r.arrayOIDs[n]), nil
}

// LookupOID returns the codec for a type or array type OID.
func (r *Registry) LookupOID(id oid.Oid) (Codec, error) {
	name, ok := r.byOID[id]
	if !ok {
		return nil, kerrors.WithKind(nil, ErrUnregisteredType, fmt.Sprintf("Type OID %d is not registered", id))
	}
	return r.Lookup(name)
}

// Enum returns the descriptor of the registered enum name.
func (r *Registry) Enum(name string) (*EnumType, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	ec, ok := c.(*EnumCodec)
	if !ok {
		return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Type %s is not an enum", name))
	}
	return ec.Type(), nil
}

// Domain returns the descriptor of the registered domain name.
func (r *Registry) Domain(name string) (*DomainType, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	dc, ok := c.(*DomainCodec)
	if !ok {
		return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Type %s is not a domain", name))
	}
	return dc.Type(), nil
}

// infer picks the codec for a parameter that carries no explicit type.
func (r *Registry) infer(v Value) (Codec, error) {
	switch v.Kind() {
	case KindText:
		return r.Lookup("text")
	case KindBool:
		return r.Lookup("bool")
	case KindInt:
		return r.Lookup("int8")
	case KindFloat:
		return r.Lookup("float8")
	case KindUUID:
		return r.Lookup("uuid")
	case KindEnum, KindDomain:
		return r.Lookup(v.typ)
	case KindArray:
		return r.LookupArrayOf(v.typ)
	}
	return nil, kerrors.WithKind(nil, ErrUnregisteredType, fmt.Sprintf("Cannot infer a type for %s value", v.Kind()))
}

func arrayElemName(name string) (string, bool) {
	if strings.HasPrefix(name, "_") && len(name) > 1 {
		return name[1:], true
	}
	if strings.HasSuffix(name, "[]") && len(name) > 2 {
		return name[:len(name)-2], true
	}
	return "", false
}
