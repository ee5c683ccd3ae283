package xpg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/lib/pq/oid"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

const (
	catalogTypesQuery = `SELECT t.oid::int8 AS oid, t.typname::text AS typname, t.typtype::text AS typtype,
       t.typarray::int8 AS typarray, COALESCE(b.typname::text, '') AS basename
  FROM pg_catalog.pg_type t
  LEFT JOIN pg_catalog.pg_type b ON b.oid = t.typbasetype
 WHERE t.typname = ANY($1::text[])
 ORDER BY t.typname, t.oid`

	catalogEnumQuery = `SELECT e.enumtypid::int8 AS typid, e.enumlabel::text AS label
  FROM pg_catalog.pg_enum e
 WHERE e.enumtypid = ANY($1::int8[])
 ORDER BY e.enumtypid, e.enumsortorder`

	catalogColumnsQuery = `SELECT a.attname::text AS name, t.typname::text AS type, a.attnotnull AS notnull
  FROM pg_catalog.pg_attribute a
  JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
 WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
 ORDER BY a.attnum`
)

var (
	catalogTypesShape = Shape{
		NotNull("oid", "int8"),
		NotNull("typname", "text"),
		NotNull("typtype", "text"),
		NotNull("typarray", "int8"),
		NotNull("basename", "text"),
	}
	catalogEnumShape = Shape{
		NotNull("typid", "int8"),
		NotNull("label", "text"),
	}
	catalogColumnsShape = Shape{
		NotNull("name", "text"),
		NotNull("type", "text"),
		NotNull("notnull", "bool"),
	}
)

// LoadTypes reads the descriptors of the user-defined types names from the
// database catalog and registers them into reg with their OIDs.
//
// Enums, domains over a text type and the citext extension type are
// supported. Domains over citext compare case-insensitively. A name not found
// in the catalog fails with [ErrUnregisteredType]; any other kind of type
// fails with [ErrInvalidType]. Names already registered are skipped. Either
// every type is registered or, on error, none is. LoadTypes must run before
// reg is sealed.
func LoadTypes(ctx context.Context, h Handle, reg *Registry, names ...string) error {
	var want []string
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = normalizeTypeName(n)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := reg.codecs[n]; ok {
			continue
		}
		want = append(want, n)
	}
	if len(want) == 0 {
		return nil
	}
	if reg.Sealed() {
		return kerrors.WithKind(nil, ErrRegistrySealed, "Cannot load types into a sealed registry")
	}

	types, err := catalogQuery(ctx, h, reg, catalogTypesShape, catalogTypesQuery, pq.StringArray(want))
	if err != nil {
		return kerrors.WithMsg(err, "Failed reading pg_type")
	}
	found := make(map[string]Record, len(types))
	var enumIDs []int64
	for _, rec := range types {
		name, _ := rec.Get("typname").AsText()
		if _, ok := found[name]; ok {
			return kerrors.WithKind(nil, ErrDuplicateType, fmt.Sprintf("Type %s exists in more than one schema", name))
		}
		found[name] = rec
		if typtype, _ := rec.Get("typtype").AsText(); typtype == "e" {
			id, _ := rec.Get("oid").AsInt()
			enumIDs = append(enumIDs, id)
		}
	}
	for _, n := range want {
		if _, ok := found[n]; !ok {
			return kerrors.WithKind(nil, ErrUnregisteredType, fmt.Sprintf("Type %s not found in catalog", n))
		}
	}

	labels := map[int64][]string{}
	if len(enumIDs) > 0 {
		recs, err := catalogQuery(ctx, h, reg, catalogEnumShape, catalogEnumQuery, pq.Int64Array(enumIDs))
		if err != nil {
			return kerrors.WithMsg(err, "Failed reading pg_enum")
		}
		for _, rec := range recs {
			id, _ := rec.Get("typid").AsInt()
			label, _ := rec.Get("label").AsText()
			labels[id] = append(labels[id], label)
		}
	}

	regs := make([]registration, 0, len(want))
	for _, n := range want {
		rec := found[n]
		id, _ := rec.Get("oid").AsInt()
		arrayID, _ := rec.Get("typarray").AsInt()
		typtype, _ := rec.Get("typtype").AsText()
		base, _ := rec.Get("basename").AsText()
		c, err := catalogCodec(n, typtype, base, oid.Oid(id), labels[id])
		if err != nil {
			return err
		}
		regs = append(regs, registration{codec: c, arrayID: oid.Oid(arrayID)})
	}
	if err := reg.registerAll(regs); err != nil {
		return err
	}
	reg.log.Debug("Loaded types from catalog", zap.Strings("types", want))
	return nil
}

func catalogCodec(name, typtype, base string, id oid.Oid, labels []string) (Codec, error) {
	switch {
	case typtype == "e":
		t, err := NewEnumType(name, labels...)
		if err != nil {
			return nil, kerrors.WithMsg(err, fmt.Sprintf("Invalid enum %s in catalog", name))
		}
		return NewEnumCodec(t, id), nil
	case typtype == "d":
		policy := CompareDefault
		if normalizeTypeName(base) == "citext" {
			policy = CompareCaseInsensitive
		}
		t, err := NewDomainType(name, base, policy)
		if err != nil {
			return nil, err
		}
		return NewDomainCodec(t, id), nil
	case typtype == "b" && name == "citext":
		return NewDomainCodec(MustDomainType(name, "text", CompareCaseInsensitive), id), nil
	}
	return nil, kerrors.WithKind(nil, ErrInvalidType, fmt.Sprintf("Type %s of category %q is not supported", name, typtype))
}

// TableColumn is one column of a table as recorded in pg_attribute.
type TableColumn struct {
	Name    string
	Type    string
	NotNull bool
}

// TableColumns reads the columns of table in attribute order. table may be
// schema qualified.
func TableColumns(ctx context.Context, h Handle, reg *Registry, table string) ([]TableColumn, error) {
	recs, err := catalogQuery(ctx, h, reg, catalogColumnsShape, catalogColumnsQuery, table)
	if err != nil {
		return nil, kerrors.WithMsg(err, fmt.Sprintf("Failed reading columns of %s", table))
	}
	cols := make([]TableColumn, 0, len(recs))
	for _, rec := range recs {
		name, _ := rec.Get("name").AsText()
		typ, _ := rec.Get("type").AsText()
		notNull, _ := rec.Get("notnull").AsBool()
		cols = append(cols, TableColumn{Name: name, Type: typ, NotNull: notNull})
	}
	return cols, nil
}

// ShapeFromColumns is the shape of a SELECT * over a table with cols.
func ShapeFromColumns(cols []TableColumn) Shape {
	shape := make(Shape, 0, len(cols))
	for _, c := range cols {
		shape = append(shape, Column{Name: c.Name, Type: c.Type, NotNull: c.NotNull})
	}
	return shape
}

// VerifyShape checks shape against the catalog columns of a table. It reports,
// as one error of kind [ErrShapeMismatch]:
//   - required shape columns the table lacks
//   - declared types that are not registered in reg
//   - declared types that differ from the catalog type
//   - NotNull shape columns the table allows to be null
//
// Each problem is a [ColumnError].
func VerifyShape(reg *Registry, cols []TableColumn, shape Shape) error {
	byName := make(map[string]TableColumn, len(cols))
	for _, c := range cols {
		byName[normalizeColAscii(c.Name)] = c
	}

	var problems []error
	report := func(col string, format string, args ...any) {
		problems = append(problems, &ColumnError{Column: col, Err: fmt.Errorf(format, args...)})
	}
	for _, sc := range shape {
		c, err := reg.Lookup(sc.Type)
		if err != nil {
			problems = append(problems, &ColumnError{Column: sc.Name, Err: err})
			continue
		}
		tc, ok := byName[normalizeColAscii(sc.Name)]
		if !ok {
			if !sc.Optional {
				report(sc.Name, "not a column of the table")
			}
			continue
		}
		if catalogType := normalizeTypeName(tc.Type); c.TypeName() != catalogType {
			report(sc.Name, "declared as %s but the table stores %s", c.TypeName(), catalogType)
		}
		if sc.NotNull && !tc.NotNull {
			report(sc.Name, "declared not null but the table column is nullable")
		}
	}
	if len(problems) == 0 {
		return nil
	}
	names := make([]string, 0, len(problems))
	for _, p := range problems {
		var ce *ColumnError
		if errors.As(p, &ce) {
			names = append(names, ce.Column)
		}
	}
	return kerrors.WithKind(errors.Join(problems...), ErrShapeMismatch, fmt.Sprintf("Shape mismatch in columns %s", strings.Join(names, ", ")))
}

// catalogQuery runs a catalog statement with pre-encoded args. It reads the
// registry without sealing it.
func catalogQuery(ctx context.Context, h Handle, reg *Registry, shape Shape, query string, args ...any) ([]Record, error) {
	codecs, err := shapeCodecs(reg, shape)
	if err != nil {
		return nil, err
	}
	db, release, err := h.lease(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := queryRecords(ctx, db, codecs, shape, 0, query, args)
	release(ctx, err)
	return recs, err
}
