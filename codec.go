package xpg

import (
	"database/sql/driver"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq/oid"
)

// Codec translates between [Value] and the driver value transmitted for one
// PostgreSQL type.
//
// Decode receives whatever the driver produced for the column: nil for SQL
// NULL, a native Go value (int64, float64, bool), or the text
// format as []byte or string. Every codec decodes nil to [Null].
type Codec interface {
	TypeName() string
	OID() oid.Oid
	Encode(v Value) (driver.Value, error)
	Decode(src any) (Value, error)
}

type scalarCodec struct {
	name   string
	id     oid.Oid
	encode func(name string, v Value) (driver.Value, error)
	decode func(name string, src any) (Value, error)
}

func (c *scalarCodec) TypeName() string { return c.name }
func (c *scalarCodec) OID() oid.Oid     { return c.id }

func (c *scalarCodec) Encode(v Value) (driver.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	return c.encode(c.name, v)
}

func (c *scalarCodec) Decode(src any) (Value, error) {
	if src == nil {
		return Null(), nil
	}
	return c.decode(c.name, src)
}

func builtinCodecs() []Codec {
	return []Codec{
		&scalarCodec{name: "text", id: oid.T_text, encode: encodeText, decode: decodeText},
		&scalarCodec{name: "varchar", id: oid.T_varchar, encode: encodeText, decode: decodeText},
		&scalarCodec{name: "bpchar", id: oid.T_bpchar, encode: encodeText, decode: decodeText},
		&scalarCodec{name: "name", id: oid.T_name, encode: encodeText, decode: decodeText},
		&scalarCodec{name: "char", id: oid.T_char, encode: encodeText, decode: decodeText},
		&scalarCodec{name: "bool", id: oid.T_bool, encode: encodeBool, decode: decodeBool},
		&scalarCodec{name: "int2", id: oid.T_int2, encode: intEncoder(math.MinInt16, math.MaxInt16), decode: intDecoder(math.MinInt16, math.MaxInt16)},
		&scalarCodec{name: "int4", id: oid.T_int4, encode: intEncoder(math.MinInt32, math.MaxInt32), decode: intDecoder(math.MinInt32, math.MaxInt32)},
		&scalarCodec{name: "int8", id: oid.T_int8, encode: intEncoder(math.MinInt64, math.MaxInt64), decode: intDecoder(math.MinInt64, math.MaxInt64)},
		&scalarCodec{name: "oid", id: oid.T_oid, encode: intEncoder(0, math.MaxUint32), decode: intDecoder(0, math.MaxUint32)},
		&scalarCodec{name: "float4", id: oid.T_float4, encode: encodeFloat, decode: decodeFloat},
		&scalarCodec{name: "float8", id: oid.T_float8, encode: encodeFloat, decode: decodeFloat},
		&scalarCodec{name: "uuid", id: oid.T_uuid, encode: encodeUUID, decode: decodeUUID},
	}
}

// builtinArrayOIDs maps element OIDs to their array type OIDs.
var builtinArrayOIDs = map[oid.Oid]oid.Oid{
	oid.T_text:    oid.T__text,
	oid.T_varchar: oid.T__varchar,
	oid.T_bpchar:  oid.T__bpchar,
	oid.T_name:    oid.T__name,
	oid.T_char:    oid.T__char,
	oid.T_bool:    oid.T__bool,
	oid.T_int2:    oid.T__int2,
	oid.T_int4:    oid.T__int4,
	oid.T_int8:    oid.T__int8,
	oid.T_oid:     oid.T__oid,
	oid.T_float4:  oid.T__float4,
	oid.T_float8:  oid.T__float8,
	oid.T_uuid:    oid.T__uuid,
}

// textOf reads the text format of a driver value.
func textOf(src any) (string, bool) {
	switch s := src.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func encodeText(name string, v Value) (driver.Value, error) {
	s, ok := v.AsText()
	if !ok {
		return nil, encodeErr(name, "cannot encode %s value", v.Kind())
	}
	return s, nil
}

func decodeText(name string, src any) (Value, error) {
	s, ok := textOf(src)
	if !ok {
		return Value{}, decodeErr(nil, name, "unsupported source %T", src)
	}
	return Text(s), nil
}

func encodeBool(name string, v Value) (driver.Value, error) {
	b, ok := v.AsBool()
	if !ok {
		return nil, encodeErr(name, "cannot encode %s value", v.Kind())
	}
	return b, nil
}

func decodeBool(name string, src any) (Value, error) {
	if b, ok := src.(bool); ok {
		return Bool(b), nil
	}
	s, ok := textOf(src)
	if !ok {
		return Value{}, decodeErr(nil, name, "unsupported source %T", src)
	}
	switch strings.ToLower(s) {
	case "t", "true":
		return Bool(true), nil
	case "f", "false":
		return Bool(false), nil
	}
	return Value{}, decodeErr(nil, name, "invalid boolean %q", s)
}

func intEncoder(lo, hi int64) func(string, Value) (driver.Value, error) {
	return func(name string, v Value) (driver.Value, error) {
		n, ok := v.AsInt()
		if !ok {
			return nil, encodeErr(name, "cannot encode %s value", v.Kind())
		}
		if n < lo || n > hi {
			return nil, encodeErr(name, "%d out of range", n)
		}
		return n, nil
	}
}

func intDecoder(lo, hi int64) func(string, any) (Value, error) {
	return func(name string, src any) (Value, error) {
		var n int64
		switch s := src.(type) {
		case int64:
			n = s
		case int32:
			n = int64(s)
		case int16:
			n = int64(s)
		case uint32:
			n = int64(s)
		default:
			text, ok := textOf(src)
			if !ok {
				return Value{}, decodeErr(nil, name, "unsupported source %T", src)
			}
			var err error
			n, err = strconv.ParseInt(text, 10, 64)
			if err != nil {
				return Value{}, decodeErr(err, name, "invalid integer %q", text)
			}
		}
		if n < lo || n > hi {
			return Value{}, decodeErr(nil, name, "%d out of range", n)
		}
		return Int(n), nil
	}
}

func encodeFloat(name string, v Value) (driver.Value, error) {
	f, ok := v.AsFloat()
	if !ok {
		return nil, encodeErr(name, "cannot encode %s value", v.Kind())
	}
	return f, nil
}

func decodeFloat(name string, src any) (Value, error) {
	switch f := src.(type) {
	case float64:
		return Float(f), nil
	case float32:
		return Float(float64(f)), nil
	}
	s, ok := textOf(src)
	if !ok {
		return Value{}, decodeErr(nil, name, "unsupported source %T", src)
	}
	switch s {
	case "Infinity":
		return Float(math.Inf(1)), nil
	case "-Infinity":
		return Float(math.Inf(-1)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, decodeErr(err, name, "invalid float %q", s)
	}
	return Float(f), nil
}

func encodeUUID(name string, v Value) (driver.Value, error) {
	id, ok := v.AsUUID()
	if !ok {
		return nil, encodeErr(name, "cannot encode %s value", v.Kind())
	}
	return id.String(), nil
}

func decodeUUID(name string, src any) (Value, error) {
	switch s := src.(type) {
	case [16]byte:
		return UUID(uuid.UUID(s)), nil
	case []byte:
		if len(s) == 16 {
			id, err := uuid.FromBytes(s)
			if err != nil {
				return Value{}, decodeErr(err, name, "invalid uuid bytes")
			}
			return UUID(id), nil
		}
		id, err := uuid.ParseBytes(s)
		if err != nil {
			return Value{}, decodeErr(err, name, "invalid uuid %q", s)
		}
		return UUID(id), nil
	case string:
		id, err := uuid.Parse(s)
		if err != nil {
			return Value{}, decodeErr(err, name, "invalid uuid %q", s)
		}
		return UUID(id), nil
	}
	return Value{}, decodeErr(nil, name, "unsupported source %T", src)
}

// arrayElementText renders an encoded element as its text format, the form
// elements take inside an array literal. ok is false for SQL NULL.
func arrayElementText(name string, dv driver.Value) (string, bool, error) {
	switch x := dv.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case []byte:
		return string(x), true, nil
	case bool:
		if x {
			return "t", true, nil
		}
		return "f", true, nil
	case int64:
		return strconv.FormatInt(x, 10), true, nil
	case float64:
		switch {
		case math.IsInf(x, 1):
			return "Infinity", true, nil
		case math.IsInf(x, -1):
			return "-Infinity", true, nil
		case math.IsNaN(x):
			return "NaN", true, nil
		}
		return strconv.FormatFloat(x, 'g', -1, 64), true, nil
	}
	return "", false, encodeErr(name, "unsupported element %T", dv)
}
