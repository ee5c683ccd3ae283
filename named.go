// named.go
package xpg

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"xorkevin.dev/kerrors"
)

// Named resolves :name parameters and rewrites them to $1, $2, ...
//
// params is a struct (fields bind by `db` tag, and `type=` sets the
// parameter type) or a map[string]any whose values are anything [Executor.Exec]
// accepts. Repeated names reuse the same placeholder. Quoted strings and
// identifiers, comments, dollar-quoted bodies and :: casts are skipped.
//
//	sql, args, err := xpg.Named(
//	    `INSERT INTO table1 (text, myenum) VALUES (:text, :state)`,
//	    map[string]any{"text": "a", "state": xpg.Typed("my_enum", xpg.Text("state1"))},
//	)
//	// sql  => INSERT INTO table1 (text, myenum) VALUES ($1, $2)
func Named(query string, params any) (string, []any, error) {
	if params == nil {
		return "", nil, kerrors.WithKind(nil, ErrNilParams, "Named parameters are nil")
	}

	toks, err := findNamedParams(query)
	if err != nil {
		return "", nil, err
	}
	if len(toks) == 0 {
		return query, nil, nil
	}

	lut, err := Params(params)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.Grow(len(query) + len(toks))
	var args []any
	pos := make(map[string]int, len(toks))
	last := 0

	for _, t := range toks {
		b.WriteString(query[last:t.start])

		key := strings.ToLower(t.name)
		n, seen := pos[key]
		if !seen {
			p, ok := lut[key]
			if !ok {
				return "", nil, kerrors.WithKind(nil, ErrMissingParam, fmt.Sprintf("Missing value for :%s", t.name))
			}
			args = append(args, p)
			n = len(args)
			pos[key] = n
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		last = t.end
	}
	b.WriteString(query[last:])
	return b.String(), args, nil
}

// Params converts a struct or map[string]any into named parameters keyed by
// lower-case name.
func Params(params any) (map[string]Param, error) {
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, kerrors.WithKind(nil, ErrNilParams, "Named parameters are a nil pointer")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, kerrors.WithKind(nil, ErrUnsupportedArg, fmt.Sprintf("Named parameter map has %s keys", rv.Type().Key()))
		}
		m := make(map[string]Param, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := strings.ToLower(iter.Key().String())
			p, err := toParam(iter.Value().Interface())
			if err != nil {
				return nil, kerrors.WithMsg(err, fmt.Sprintf("Invalid named parameter :%s", key))
			}
			m[key] = p
		}
		return m, nil
	case reflect.Struct:
		m := make(map[string]Param)
		if err := addStructFields(m, rv); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, kerrors.WithKind(nil, ErrUnsupportedArg, fmt.Sprintf("Named parameters must be a struct or map, got %s", rv.Kind()))
	}
}

func addStructFields(dst map[string]Param, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		if f.PkgPath != "" && !f.Anonymous {
			continue
		}

		tag := f.Tag.Get("db")
		opts := parseTag(tag)
		if opts.omit {
			continue
		}

		// Embedded types: follow pointer chains; skip if nil; flatten fields.
		if f.Anonymous || opts.inline {
			ft := f.Type
			fv := v.Field(i)

			isNil := false
			for ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					isNil = true
					break
				}
				ft = ft.Elem()
				fv = fv.Elem()
			}
			if isNil {
				continue
			}
			if ft.Kind() == reflect.Struct && !isLeafStruct(ft) && (opts.inline || tag == "") {
				if err := addStructFields(dst, fv); err != nil {
					return err
				}
				continue
			}
		}
		if f.PkgPath != "" {
			continue
		}

		name := opts.name
		if name == "" {
			name = f.Name
		}
		key := strings.ToLower(name)
		if _, exists := dst[key]; exists {
			return kerrors.WithKind(nil, ErrDuplicateKeyTag, fmt.Sprintf("Parameter :%s bound by more than one field", key))
		}
		val, err := valueOf(v.Field(i), opts.typ)
		if err != nil {
			return kerrors.WithMsg(err, fmt.Sprintf("Invalid named parameter :%s", key))
		}
		dst[key] = Param{Type: opts.typ, Value: val}
	}
	return nil
}

// NamedExec is [Executor.Exec] with :name parameters resolved by [Named].
//
// Example:
//
//	_, err := ex.NamedExec(ctx, tx,
//	    `UPDATE table1 SET myenum = :state WHERE text = :text`,
//	    struct {
//	        State string `db:"state,type=my_enum"`
//	        Text  string `db:"text"`
//	    }{"state3", "insert_in_tx"},
//	)
func (e *Executor) NamedExec(ctx context.Context, h Handle, query string, params any) (int64, error) {
	bound, args, err := Named(query, params)
	if err != nil {
		return 0, err
	}
	return e.Exec(ctx, h, bound, args...)
}

// NamedQuery is [Executor.Query] with :name parameters resolved by [Named].
func (e *Executor) NamedQuery(ctx context.Context, h Handle, shape Shape, query string, params any) ([]Record, error) {
	bound, args, err := Named(query, params)
	if err != nil {
		return nil, err
	}
	return e.Query(ctx, h, shape, bound, args...)
}

// NamedFetchOne is [Executor.FetchOne] with :name parameters resolved by [Named].
func (e *Executor) NamedFetchOne(ctx context.Context, h Handle, shape Shape, query string, params any) (Record, error) {
	bound, args, err := Named(query, params)
	if err != nil {
		return Record{}, err
	}
	return e.FetchOne(ctx, h, shape, bound, args...)
}

type nameToken struct {
	name  string
	start int
	end   int
}

func findNamedParams(query string) ([]nameToken, error) {
	var out []nameToken
	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'':
			j, err := skipSingleQuoted(query, i+w, isEscapeStringPrefix(query, i))
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '"':
			j, err := skipDoubleQuoted(query, i+w)
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '-':
			if hasPrefix(query[i:], "--") {
				i = skipLineComment(query, i+2)
				continue
			}
		case '/':
			if hasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i+2)
				if err != nil {
					return nil, err
				}
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(query, i); err != nil {
				return nil, err
			} else if ok {
				i = j
				continue
			}
		case ':':
			if hasPrefix(query[i:], "::") {
				i += 2 // skip PG cast
				continue
			}
			start := i
			name, end := parseIdent(query, i+1)
			if name != "" {
				out = append(out, nameToken{name: name, start: start, end: end})
				i = end
				continue
			}
		}
		i += w
	}
	return out, nil
}

// isEscapeStringPrefix reports whether the quote at i opens an E'...' string,
// in which backslash escapes the next character.
func isEscapeStringPrefix(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	if i == 1 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i-1])
	return !isTagChar(r)
}

func skipSingleQuoted(s string, i int, backslash bool) (int, error) {
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		i += w
		if backslash && r == '\\' {
			if i < len(s) {
				_, w = utf8.DecodeRuneInString(s[i:])
				i += w
			}
			continue
		}
		if r == '\'' {
			if i < len(s) && s[i] == '\'' {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, unterminated("single-quoted string")
}

func skipDoubleQuoted(s string, i int) (int, error) {
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		i += w
		if r == '"' {
			if i < len(s) && s[i] == '"' {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, unterminated("double-quoted identifier")
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) (int, error) {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2, nil
		}
		i++
	}
	return 0, unterminated("block comment")
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$. A positional
// placeholder such as $1 is not a dollar quote.
func skipDollarQuoted(s string, i int) (int, bool, error) {
	if s[i] != '$' {
		return 0, false, nil
	}
	j := i + 1
	if j < len(s) && s[j] >= '0' && s[j] <= '9' {
		return 0, false, nil
	}
	for j < len(s) && s[j] != '$' && isTagChar(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	tag := s[i : j+1]
	k := j + 1
	idx := strings.Index(s[k:], tag)
	if idx < 0 {
		return 0, true, unterminated("dollar-quoted string")
	}
	return k + idx + len(tag), true, nil
}

func unterminated(what string) error {
	return kerrors.WithKind(nil, ErrInvalidQuery, "Unterminated "+what)
}

func isTagChar(r rune) bool      { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			break
		}
		i += w
	}
	if i == start {
		return "", i
	}
	return s[start:i], i
}
