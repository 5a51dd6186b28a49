// Package row defines the value model shared by every table in the
// engine: a Row is a mapping from column name to a scalar Value drawn
// from a closed set of JSON-compatible types.
package row

import (
	"cmp"
	"fmt"
)

// Kind tags the dynamic type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindJSON
)

// Value is a tagged union over the scalar types a column may hold.
// It is intentionally closed: the wire contract (spec.md §6) only ever
// needs JSON scalars plus null, so a sum type over fixed Go primitives
// is simpler and safer than an `any` field that callers must assert on.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	json any // decoded JSON tree, for KindJSON only
}

func Null() Value                 { return Value{kind: KindNull} }
func String(v string) Value       { return Value{kind: KindString, s: v} }
func Int(v int64) Value           { return Value{kind: KindInt, i: v} }
func Float(v float64) Value       { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func JSON(v any) Value            { return Value{kind: KindJSON, json: v} }

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) JSONTree() (any, bool) {
	if v.kind != KindJSON {
		return nil, false
	}
	return v.json, true
}

// Any returns the value's dynamic Go representation, for logging and
// for handing off to callers that do not care about the static kind.
func (v Value) Any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindJSON:
		return v.json
	default:
		return nil
	}
}

// Compare orders two values of the same kind; null sorts before every
// other kind. Mismatched non-null kinds compare by kind ordinal, which
// is only meaningful for producing a total, stable order over a single
// column whose declared type does not vary between rows.
func Compare(a, b Value) int {
	if a.kind == KindNull || b.kind == KindNull {
		if a.kind == b.kind {
			return 0
		}
		if a.kind == KindNull {
			return -1
		}
		return 1
	}
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case KindString:
		return cmp.Compare(a.s, b.s)
	case KindInt:
		return cmp.Compare(a.i, b.i)
	case KindFloat:
		return cmp.Compare(a.f, b.f)
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Row is an ordered-by-insertion mapping from column name to Value.
type Row struct {
	cols   []string
	values map[string]Value
}

// New builds a Row from a column->value map. The column order used for
// Columns() is taken from cols to give callers control over stable
// iteration without depending on Go's randomized map order.
func New(cols []string, values map[string]Value) Row {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Row{cols: append([]string(nil), cols...), values: cp}
}

func (r Row) Get(col string) (Value, bool) {
	v, ok := r.values[col]
	return v, ok
}

func (r Row) MustGet(col string) Value {
	v, ok := r.values[col]
	if !ok {
		panic(fmt.Sprintf("row: column %q not present", col))
	}
	return v
}

func (r Row) Columns() []string {
	return append([]string(nil), r.cols...)
}

// With returns a copy of r with col set to v, adding col to the column
// order if it is not already present.
func (r Row) With(col string, v Value) Row {
	out := Row{values: make(map[string]Value, len(r.values)+1)}
	out.cols = append(out.cols, r.cols...)
	for k, vv := range r.values {
		out.values[k] = vv
	}
	if _, exists := out.values[col]; !exists {
		out.cols = append(out.cols, col)
	}
	out.values[col] = v
	return out
}

// Key extracts an ordered primary-key tuple given the key column list.
type Key struct {
	cols   []string
	values []Value
}

func (r Row) PrimaryKey(pkCols []string) Key {
	vals := make([]Value, len(pkCols))
	for i, c := range pkCols {
		vals[i] = r.MustGet(c)
	}
	return Key{cols: append([]string(nil), pkCols...), values: vals}
}

// KeyFromValues builds a Key directly from an already-extracted value
// tuple, for callers (e.g. correlation keys in the join/exists
// operators) that are not keying off a Row's declared primary key.
func KeyFromValues(vals []Value) Key {
	return Key{values: append([]Value(nil), vals...)}
}

// String renders the key as a stable map key for use in Go maps; two
// keys with equal values produce equal strings regardless of the
// concrete Value kind's zero state.
func (k Key) String() string {
	s := ""
	for i, v := range k.values {
		if i > 0 {
			s += "\x1f"
		}
		s += fmt.Sprintf("%v", v.Any())
	}
	return s
}

func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// CompareKeys orders two sort keys column-by-column honoring per-column
// direction (true = descending), used by every ordered operator and by
// the pagination anchor (ast.Start). When the keys differ in length only
// their shared leading columns are compared.
func CompareKeys(a, b []Value, desc []bool) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c := Compare(a[i], b[i])
		if i < len(desc) && desc[i] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
