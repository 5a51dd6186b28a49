package engine

import (
	"strings"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/operator"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/view"
)

// buildGraph compiles a planned AST into an operator graph: a
// TableSource ordered per the AST's effective orderBy, filtered by its
// non-exists Where predicates, narrowed by any top-level EXISTS terms
// (each wired as its own operator.Exists over a recursively-built child
// graph), narrowed again by any top-level OR-of-EXISTS groups (each
// wired as an operator.FanOut feeding independent operator.Exists
// branches that recombine through an operator.FanIn per spec.md §4.2),
// windowed by Start/Limit, and finally wrapped for every Related
// attachment with operator.Join.
//
// Simplification: EXISTS terms must be direct conjuncts of the root
// Where, or disjuncts of a top-level OR all of whose arms are
// themselves EXISTS; an EXISTS nested under NOT, or mixed into an OR
// alongside a non-exists predicate, is rejected rather than compiled,
// since composing Exists's stateful incremental semantics with
// arbitrary boolean combinators needs a general predicate-algebra
// evaluator this graph builder does not implement. See DESIGN.md.
func (e *Engine) buildGraph(a ast.AST) (operator.Operator, []view.Catchable, []view.Unsubscriber, error) {
	t, err := e.schema.Table(a.Table)
	if err != nil {
		return nil, nil, nil, err
	}
	src, err := e.source(a.Table)
	if err != nil {
		return nil, nil, nil, err
	}

	orderBy := ast.EffectiveOrderBy(a, t.PrimaryKey)
	ts := operator.Connect(src, orderBy, nil)

	leaves := []view.Catchable{ts}
	subs := []view.Unsubscriber{ts}

	plainPredicate, existsTerms, orExistsGroups, err := splitWhere(a.Where)
	if err != nil {
		return nil, nil, nil, err
	}

	var root operator.Operator = ts
	if plainPredicate != nil {
		pred := plainPredicate
		root = operator.NewFilter(root, func(r row.Row) (bool, error) { return evalPredicate(pred, r) })
	}

	for _, ex := range existsTerms {
		childRoot, err := e.attachExistsChild(ex, &leaves, &subs)
		if err != nil {
			return nil, nil, nil, err
		}
		root = operator.NewExists(root, childRoot, ex.Related.Correlation, ex.Flip, ex.Negated)
	}

	for _, group := range orExistsGroups {
		fanOut := operator.NewFanOut(root)
		branches := make([]operator.Operator, 0, len(group))
		for _, ex := range group {
			childRoot, err := e.attachExistsChild(ex, &leaves, &subs)
			if err != nil {
				return nil, nil, nil, err
			}
			branches = append(branches, operator.NewExists(fanOut, childRoot, ex.Related.Correlation, ex.Flip, ex.Negated))
		}
		fanIn := operator.NewFanIn(t.PrimaryKey, len(branches))
		for _, br := range branches {
			fanIn.AddBranch(br)
		}
		root = fanIn
	}

	if a.Start != nil || a.Limit != nil {
		limit := -1
		if a.Limit != nil {
			limit = *a.Limit
		}
		if limit >= 0 {
			root = operator.NewTake(root, limit, orderBy, t.PrimaryKey, a.Start)
		} else if a.Start != nil {
			root = operator.NewSkip(root, *a.Start, orderBy, t.PrimaryKey)
		}
	}

	for _, rel := range a.Related {
		if rel.Subquery == nil {
			continue
		}
		if r, ok := t.Relationships[rel.RelationshipName]; ok && r.IsJunction() {
			if err := ast.ValidateJunctionInner(*rel.Subquery); err != nil {
				return nil, nil, nil, err
			}
		}
		childTable, err := e.schema.Table(rel.Subquery.Table)
		if err != nil {
			return nil, nil, nil, err
		}
		childRoot, childLeaves, childSubs, err := e.buildGraph(*rel.Subquery)
		if err != nil {
			return nil, nil, nil, err
		}
		leaves = append(leaves, childLeaves...)
		subs = append(subs, childSubs...)
		root = operator.NewJoin(root, childRoot, rel.RelationshipName, rel.Correlation, childTable.PrimaryKey)
	}

	return operator.NewSnapshot(root), leaves, subs, nil
}

// attachExistsChild builds the child operator graph for one EXISTS
// term, threading its leaves and unsubscribers into the caller's
// accumulators.
func (e *Engine) attachExistsChild(ex ast.ExistsExpr, leaves *[]view.Catchable, subs *[]view.Unsubscriber) (operator.Operator, error) {
	if ex.Related.Subquery == nil {
		return nil, ivmerr.Validation.New("EXISTS term has no subquery")
	}
	childRoot, childLeaves, childSubs, err := e.buildGraph(*ex.Related.Subquery)
	if err != nil {
		return nil, err
	}
	*leaves = append(*leaves, childLeaves...)
	*subs = append(*subs, childSubs...)
	return childRoot, nil
}

// splitWhere separates a where tree's top-level conjuncts into a single
// combined non-exists predicate expression, the list of EXISTS terms
// ANDed alongside it, and the list of OR-of-EXISTS groups ANDed
// alongside it (each group compiles to a FanOut/FanIn pipeline per
// spec.md §4.2). A bare ExistsExpr at the root is treated as a
// one-element AND. An EXISTS nested under NOT, or under an OR mixed
// with a non-exists disjunct, is rejected.
func splitWhere(e ast.Expr) (ast.Expr, []ast.ExistsExpr, [][]ast.ExistsExpr, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil, nil, nil
	case ast.ExistsExpr:
		return nil, []ast.ExistsExpr{v}, nil, nil
	case ast.OrExpr:
		if group, ok := allExists(v.Conditions); ok {
			return nil, nil, [][]ast.ExistsExpr{group}, nil
		}
		if containsExists(v) {
			return nil, nil, nil, ivmerr.Validation.New("EXISTS nested under OR alongside a non-EXISTS disjunct is not supported by this graph builder")
		}
		return v, nil, nil, nil
	case ast.AndExpr:
		var plain []ast.Expr
		var exists []ast.ExistsExpr
		var orGroups [][]ast.ExistsExpr
		for _, c := range v.Conditions {
			switch cv := c.(type) {
			case ast.ExistsExpr:
				exists = append(exists, cv)
			case ast.OrExpr:
				if group, ok := allExists(cv.Conditions); ok {
					orGroups = append(orGroups, group)
					continue
				}
				if containsExists(cv) {
					return nil, nil, nil, ivmerr.Validation.New("EXISTS nested under OR alongside a non-EXISTS disjunct is not supported by this graph builder")
				}
				plain = append(plain, cv)
			default:
				if containsExists(cv) {
					return nil, nil, nil, ivmerr.Validation.New("EXISTS nested under AND's non-top-level position is not supported by this graph builder")
				}
				plain = append(plain, cv)
			}
		}
		if len(plain) == 0 {
			return nil, exists, orGroups, nil
		}
		return ast.AndExpr{Conditions: plain}, exists, orGroups, nil
	default:
		if containsExists(e) {
			return nil, nil, nil, ivmerr.Validation.New("EXISTS nested under NOT is not supported by this graph builder")
		}
		return e, nil, nil, nil
	}
}

// allExists reports whether every condition is a bare ExistsExpr,
// returning the converted slice when so.
func allExists(conds []ast.Expr) ([]ast.ExistsExpr, bool) {
	out := make([]ast.ExistsExpr, 0, len(conds))
	for _, c := range conds {
		ex, ok := c.(ast.ExistsExpr)
		if !ok {
			return nil, false
		}
		out = append(out, ex)
	}
	return out, true
}

func containsExists(e ast.Expr) bool {
	switch v := e.(type) {
	case ast.ExistsExpr:
		return true
	case ast.AndExpr:
		for _, c := range v.Conditions {
			if containsExists(c) {
				return true
			}
		}
	case ast.OrExpr:
		for _, c := range v.Conditions {
			if containsExists(c) {
				return true
			}
		}
	case ast.NotExpr:
		return containsExists(v.Condition)
	}
	return false
}

func evalPredicate(e ast.Expr, r row.Row) (bool, error) {
	switch v := e.(type) {
	case nil:
		return true, nil
	case ast.SimpleExpr:
		val, _ := r.Get(v.Column)
		return evalSimple(v, val)
	case ast.AndExpr:
		for _, c := range v.Conditions {
			ok, err := evalPredicate(c, r)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case ast.OrExpr:
		for _, c := range v.Conditions {
			ok, err := evalPredicate(c, r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ast.NotExpr:
		ok, err := evalPredicate(v.Condition, r)
		return !ok, err
	default:
		return false, ivmerr.Evaluation.New("unsupported expression node %T", e)
	}
}

func evalSimple(v ast.SimpleExpr, val row.Value) (bool, error) {
	switch v.Op {
	case ast.OpEQ:
		return row.Compare(val, v.Value) == 0, nil
	case ast.OpNEQ:
		return row.Compare(val, v.Value) != 0, nil
	case ast.OpLT:
		return row.Compare(val, v.Value) < 0, nil
	case ast.OpLTE:
		return row.Compare(val, v.Value) <= 0, nil
	case ast.OpGT:
		return row.Compare(val, v.Value) > 0, nil
	case ast.OpGTE:
		return row.Compare(val, v.Value) >= 0, nil
	case ast.OpIS:
		return val.IsNull() == v.Value.IsNull() && row.Compare(val, v.Value) == 0, nil
	case ast.OpISNOT:
		ok, err := evalSimple(ast.SimpleExpr{Column: v.Column, Op: ast.OpIS, Value: v.Value}, val)
		return !ok, err
	case ast.OpLIKE, ast.OpILIKE:
		s, _ := val.String()
		pattern, _ := v.Value.String()
		return likeMatch(s, pattern, v.Op == ast.OpILIKE), nil
	default:
		return false, ivmerr.Evaluation.New("unsupported operator %q", v.Op)
	}
}

// likeMatch implements SQL LIKE semantics for the % (any run) and _ (any
// single rune) wildcards, translating the pattern into a sequence of
// literal/any-run segments rather than a full regexp compile.
func likeMatch(s, pattern string, fold bool) bool {
	if fold {
		s = strings.ToLower(s)
		pattern = strings.ToLower(pattern)
	}
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, pattern []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '%':
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatchRunes(s[i:], pattern) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		}
	}
	return len(s) == 0
}
