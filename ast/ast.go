// Package ast defines the serializable query tree the engine plans and
// executes: table, where clause, related subqueries, ordering, limit,
// pagination anchor, and the name/args identity of a custom query.
package ast

import "github.com/zerosync/ivmengine/internal/ivmerr"

// AST is a recursive query description, per spec.md §3.
type AST struct {
	Table   string
	Where   Expr
	Related []Related
	OrderBy []OrderTerm
	Limit   *int
	Start   *Start
	One     bool

	// Name/Args identify a custom query; both are empty for an ad-hoc
	// AST built directly by a caller rather than through the registry.
	Name string
	Args []any
}

// WithPrimaryKeyTiebreak returns a copy of a whose OrderBy has the
// table's primary-key columns appended (ascending), skipping any column
// already present anywhere in OrderBy, guaranteeing a total order before execution or
// planning, per spec.md §3's invariant.
func WithPrimaryKeyTiebreak(a AST, pk []string) AST {
	out := a
	out.OrderBy = append([]OrderTerm(nil), a.OrderBy...)
	existing := map[string]bool{}
	for _, t := range out.OrderBy {
		existing[t.Column] = true
	}
	for _, col := range pk {
		if !existing[col] {
			out.OrderBy = append(out.OrderBy, OrderTerm{Column: col})
		}
	}
	return out
}

// EffectiveOrderBy returns a's OrderBy, or (if empty) the primary-key
// ascending order, matching the invariant that every plan has a total
// ordering even when the caller supplied none.
func EffectiveOrderBy(a AST, pk []string) []OrderTerm {
	if len(a.OrderBy) > 0 {
		return a.OrderBy
	}
	terms := make([]OrderTerm, len(pk))
	for i, c := range pk {
		terms[i] = OrderTerm{Column: c}
	}
	return terms
}

// Validate checks the structural invariants from spec.md §3 that do not
// require schema/statistics: non-negative limit and a start key whose
// length matches the orderBy, recursing into Related and EXISTS
// subqueries. Junction inner edges are checked separately by
// ValidateJunctionInner.
func Validate(a AST) error {
	if a.Limit != nil && *a.Limit < 0 {
		return ivmerr.Validation.New("limit must be non-negative, got %d", *a.Limit)
	}
	if a.Start != nil {
		want := len(EffectiveOrderBy(a, nil))
		if want > 0 && len(a.Start.Key) != 0 && len(a.Start.Key) != want {
			return ivmerr.Validation.New("start key has %d components, orderBy has %d", len(a.Start.Key), want)
		}
	}
	for _, rel := range a.Related {
		if rel.Subquery == nil {
			continue
		}
		if err := Validate(*rel.Subquery); err != nil {
			return err
		}
	}
	return validateExpr(a.Where)
}

func validateExpr(e Expr) error {
	switch v := e.(type) {
	case nil:
		return nil
	case AndExpr:
		for _, c := range v.Conditions {
			if err := validateExpr(c); err != nil {
				return err
			}
		}
	case OrExpr:
		for _, c := range v.Conditions {
			if err := validateExpr(c); err != nil {
				return err
			}
		}
	case NotExpr:
		return validateExpr(v.Condition)
	case ExistsExpr:
		if v.Related.Subquery != nil {
			return Validate(*v.Related.Subquery)
		}
	}
	return nil
}

// ValidateJunctionInner checks the inner (junction-table-side) leg of a
// two-connection relationship expansion: it must carry no Limit and no
// explicit OrderBy, per spec.md §4.2. Callers pass the AST that will
// become the inner join's right-hand side.
func ValidateJunctionInner(inner AST) error {
	if inner.Limit != nil {
		return ivmerr.Validation.New("UnsupportedJunctionModifier: junction inner edge may not specify limit")
	}
	if len(inner.OrderBy) != 0 {
		return ivmerr.Validation.New("UnsupportedJunctionModifier: junction inner edge may not specify orderBy")
	}
	return nil
}
