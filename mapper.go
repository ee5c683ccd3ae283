package xpg

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"xorkevin.dev/kerrors"
)

// Mapper owns the per-type caches behind [ShapeOf], [Decode] and [Params].
// Use the package-level lazy getter (getMapper) or create your own in tests.
type Mapper struct {
	structIndexCache sync.Map // key: reflect.Type -> *fieldIndex (per T)
	shapeCache       sync.Map // key: reflect.Type -> Shape
}

func NewMapper() *Mapper { return &Mapper{} }

// --- package-level lazy global mapper ---

var (
	mapper     *Mapper
	mapperOnce sync.Once
)

func getMapper() *Mapper {
	mapperOnce.Do(func() { mapper = NewMapper() })
	return mapper
}

var (
	valueType      = reflect.TypeOf(Value{})
	domainTextType = reflect.TypeOf(DomainText{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
)

// ShapeOf derives a [Shape] from the exported fields of struct T.
//
// Tags: `db:"name"`, `db:"name,type=my_enum"`, `db:",inline"`, `db:"-"`.
// Untagged fields use their lower-cased field name. Pointer fields are
// optional and may be null. Slice and [Value] fields must be present but may
// be null; every other field must be present and not null. The type
// comes from `type=` or is inferred from the Go type (string -> text,
// int64 -> int8, float64 -> float8, bool -> bool, uuid.UUID -> uuid,
// []E -> _E). [Value] and [DomainText] fields need an explicit type.
func ShapeOf[T any]() (Shape, error) {
	return getMapper().shapeOf(reflect.TypeOf((*T)(nil)).Elem())
}

// Decode assigns the columns of rec to the matching fields of a new T.
// String fields accept text and enum values but never domain values, which
// only fit [DomainText] fields. Columns without a matching field are
// ignored; fields without a matching column keep their zero value.
func Decode[T any](rec Record) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if err := getMapper().decodeInto(rv, rec); err != nil {
		return out, err
	}
	return out, nil
}

func (m *Mapper) shapeOf(rt reflect.Type) (Shape, error) {
	if v, ok := m.shapeCache.Load(rt); ok {
		return append(Shape(nil), v.(Shape)...), nil
	}
	if !isStruct(rt) {
		return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Cannot derive a shape from non-struct %s", rt))
	}
	idx := m.structIndex(rt)
	shape := make(Shape, 0, len(idx.fields))
	for _, f := range idx.fields {
		col, err := columnFor(f)
		if err != nil {
			return nil, err
		}
		shape = append(shape, col)
	}
	m.shapeCache.Store(rt, shape)
	return append(Shape(nil), shape...), nil
}

func columnFor(f fieldInfo) (Column, error) {
	col := Column{Name: f.name, Type: f.typ}
	ft := f.goType
	switch {
	case ft.Kind() == reflect.Pointer:
		col.Optional = true
		ft = ft.Elem()
	case ft.Kind() == reflect.Slice, ft == valueType:
	default:
		col.NotNull = true
	}
	if col.Type == "" {
		typ, ok := defaultTypeName(ft)
		if !ok {
			return Column{}, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Field for column %s of type %s needs a type= tag", f.name, f.goType))
		}
		col.Type = typ
	}
	return col, nil
}

// defaultTypeName infers the PostgreSQL type of a Go type.
func defaultTypeName(t reflect.Type) (string, bool) {
	switch t {
	case uuidType:
		return "uuid", true
	case valueType, domainTextType:
		return "", false
	}
	switch t.Kind() {
	case reflect.String:
		return "text", true
	case reflect.Bool:
		return "bool", true
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "int2", true
	case reflect.Int32, reflect.Uint16:
		return "int4", true
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return "int8", true
	case reflect.Float32:
		return "float4", true
	case reflect.Float64:
		return "float8", true
	case reflect.Pointer:
		return defaultTypeName(t.Elem())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "", false
		}
		elem, ok := defaultTypeName(t.Elem())
		if !ok {
			return "", false
		}
		return "_" + elem, true
	}
	return "", false
}

func (m *Mapper) decodeInto(rv reflect.Value, rec Record) error {
	if !isStruct(rv.Type()) {
		return kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Cannot decode a record into non-struct %s", rv.Type()))
	}
	idx := m.structIndex(rv.Type())
	root := rv
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	for _, f := range idx.fields {
		v, ok := rec.Lookup(f.name)
		if !ok {
			continue
		}
		fv := fieldByPathAlloc(root, f.path)
		if err := assignValue(fv, v); err != nil {
			return kerrors.WithKind(&ColumnError{Column: f.name, Err: err}, ErrColumnDecode, fmt.Sprintf("Failed assigning column %s", f.name))
		}
	}
	return nil
}

// assignValue stores v into dst, converting between the Value variant and
// the destination's Go type.
func assignValue(dst reflect.Value, v Value) error {
	t := dst.Type()
	if t == valueType {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if v.IsNull() {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice:
			dst.Set(reflect.Zero(t))
			return nil
		}
		return ErrUnexpectedNull
	}
	switch t {
	case domainTextType:
		d, ok := v.AsDomain()
		if !ok {
			return fmt.Errorf("cannot assign %s value to DomainText", v.Kind())
		}
		dst.Set(reflect.ValueOf(d))
		return nil
	case uuidType:
		id, ok := v.AsUUID()
		if !ok {
			return fmt.Errorf("cannot assign %s value to uuid.UUID", v.Kind())
		}
		dst.Set(reflect.ValueOf(id))
		return nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		p := reflect.New(t.Elem())
		if err := assignValue(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	case reflect.Slice:
		elems, ok := v.Elems()
		if !ok {
			return fmt.Errorf("cannot assign %s value to %s", v.Kind(), t)
		}
		s := reflect.MakeSlice(t, len(elems), len(elems))
		for i, e := range elems {
			if err := assignValue(s.Index(i), e); err != nil {
				return &ElementError{Index: i, Err: err}
			}
		}
		dst.Set(s)
		return nil
	case reflect.String:
		if s, ok := v.AsText(); ok {
			dst.SetString(s)
			return nil
		}
		if s, ok := v.AsEnum(); ok {
			dst.SetString(s)
			return nil
		}
		if v.Kind() == KindDomain {
			return fmt.Errorf("domain %s value needs a DomainText field, not %s", v.TypeName(), t)
		}
	case reflect.Bool:
		if b, ok := v.AsBool(); ok {
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := v.AsInt(); ok {
			if dst.OverflowInt(n) {
				return fmt.Errorf("%d overflows %s", n, t)
			}
			dst.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := v.AsInt(); ok {
			if n < 0 || dst.OverflowUint(uint64(n)) {
				return fmt.Errorf("%d overflows %s", n, t)
			}
			dst.SetUint(uint64(n))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.AsFloat(); ok {
			if dst.OverflowFloat(f) {
				return fmt.Errorf("%g overflows %s", f, t)
			}
			dst.SetFloat(f)
			return nil
		}
	}
	return fmt.Errorf("cannot assign %s value to %s", v.Kind(), t)
}

// valueOf converts a Go value into a Value. typ is the declared PostgreSQL
// type, used only to name the element type of slices.
func valueOf(rv reflect.Value, typ string) (Value, error) {
	if !rv.IsValid() {
		return Null(), nil
	}
	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value), nil
	case domainTextType:
		return rv.Interface().(DomainText).AsValue(), nil
	case uuidType:
		return UUID(rv.Interface().(uuid.UUID)), nil
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return valueOf(rv.Elem(), typ)
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt64 {
			return Value{}, encodeErr("int8", "%d out of range", n)
		}
		return Int(int64(n)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		elemType, ok := arrayElemName(normalizeTypeName(typ))
		if !ok {
			if elemType, ok = defaultTypeName(rv.Type().Elem()); !ok {
				return Value{}, encodeErr(typ, "cannot infer element type of %s", rv.Type())
			}
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			e, err := valueOf(rv.Index(i), elemType)
			if err != nil {
				return Value{}, err
			}
			elems[i] = e
		}
		return Array(elemType, elems...), nil
	}
	return Value{}, encodeErr(typ, "unsupported Go type %s", rv.Type())
}

// toParam normalizes one statement argument.
func toParam(a any) (Param, error) {
	switch x := a.(type) {
	case Param:
		return x, nil
	case *Param:
		if x == nil {
			return Param{}, nil
		}
		return *x, nil
	case Value:
		return Param{Value: x}, nil
	}
	v, err := valueOf(reflect.ValueOf(a), "")
	if err != nil {
		return Param{}, err
	}
	return Param{Value: v}, nil
}

// ---------------- Struct indexing & tags ----------------

type fieldInfo struct {
	name   string // lower-case column name
	typ    string // type= tag option
	path   []int
	goType reflect.Type
}

type fieldIndex struct {
	fields []fieldInfo
	byName map[string]int // lower-case column name -> index into fields
}

func (m *Mapper) structIndex(rt reflect.Type) *fieldIndex {
	if v, ok := m.structIndexCache.Load(rt); ok {
		return v.(*fieldIndex)
	}
	fi := buildStructIndex(rt)
	m.structIndexCache.Store(rt, &fi)
	return &fi
}

func buildStructIndex(rt reflect.Type) fieldIndex {
	idx := fieldIndex{byName: make(map[string]int)}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		t = derefPtr(t)
		if t.Kind() != reflect.Struct {
			return
		}
		n := t.NumField()
		for i := 0; i < n; i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous { // unexported, non-anonymous
				continue
			}
			tag := sf.Tag.Get("db")
			opts := parseTag(tag)
			if opts.omit {
				continue
			}
			ft := sf.Type
			path := append(append([]int(nil), base...), i)

			if opts.inline || (sf.Anonymous && (forceInline || tag == "")) {
				if isStruct(ft) && !isLeafStruct(derefPtr(ft)) {
					walk(ft, path, opts.inline)
					continue
				}
			}
			if sf.PkgPath != "" {
				continue
			}
			name := opts.name
			if name == "" {
				name = sf.Name
			}
			lc := toLowerAscii(name)
			if _, ok := idx.byName[lc]; !ok {
				idx.byName[lc] = len(idx.fields)
				idx.fields = append(idx.fields, fieldInfo{name: lc, typ: opts.typ, path: path, goType: ft})
			}
		}
	}
	walk(rt, nil, false)
	return idx
}

// isLeafStruct reports struct types that map to a single column.
func isLeafStruct(t reflect.Type) bool {
	return t == valueType || t == domainTextType
}

type tagOpts struct {
	name   string
	typ    string
	inline bool
	omit   bool
}

// parseTag supports: "-", "col", ",inline", "col,inline", "inline,col",
// and "type=name" in any position after the column name.
func parseTag(tag string) tagOpts {
	var o tagOpts
	if tag == "-" {
		o.omit = true
		return o
	}
	if tag == "" {
		return o
	}
	for i, part := range strings.Split(tag, ",") {
		switch {
		case part == "inline":
			o.inline = true
		case strings.HasPrefix(part, "type="):
			o.typ = strings.TrimPrefix(part, "type=")
		case part != "" && o.name == "" && (i == 0 || !strings.Contains(part, "=")):
			o.name = part
		}
	}
	return o
}

// ---------------- Type helpers ----------------

func isStruct(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct }

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// fieldByPathAlloc walks fpath, allocating nil pointers to embedded structs
// so the final field is addressable. The final field itself is not
// allocated; assignValue decides whether it stays nil.
func fieldByPathAlloc(root reflect.Value, fpath []int) reflect.Value {
	v := root
	for _, i := range fpath {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// ---------------- Column normalization (ASCII fast-path) ----------------

// normalizeColAscii strips one pair of double quotes and lower-cases.
func normalizeColAscii(s string) string {
	if l := len(s); l >= 2 && s[0] == '"' && s[l-1] == '"' {
		s = s[1 : l-1]
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}
