package ast

import "github.com/zerosync/ivmengine/row"

// OrderTerm is one (column, direction) pair in an orderBy list.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Start anchors a pagination window: rows sort strictly after (or, when
// Inclusive, at-or-after) Key in the effective orderBy.
//
// Open question (spec.md §9): whether an unspecified Inclusive flag
// means inclusive or exclusive is not documented in the distilled
// source. NewStart requires the caller to state it explicitly so the
// ambiguity cannot silently reach in-process callers; UnmarshalAST (the
// wire path) defaults an absent "inclusive" field to true, matching the
// instruction to treat caller-omission on the wire as inclusive. A Go
// zero-value Start{} therefore reads as exclusive, which is the
// conservative choice for code that forgets to set it explicitly.
type Start struct {
	Key       []row.Value
	Inclusive bool
}

// NewStart builds a Start anchor, forcing the caller to decide
// inclusivity rather than relying on the zero value.
func NewStart(key []row.Value, inclusive bool) Start {
	return Start{Key: key, Inclusive: inclusive}
}

// Satisfies reports whether a row's sort key lies within the window
// defined by s relative to direction desc (per column).
func (s Start) Satisfies(key []row.Value, desc []bool) bool {
	c := row.CompareKeys(key, s.Key, desc)
	if s.Inclusive {
		return c >= 0
	}
	return c > 0
}
