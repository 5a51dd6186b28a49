// Package planner implements C5: a cost-based rewriter that turns a
// client-supplied AST into a semantically equivalent AST the engine can
// execute more cheaply, by choosing EXISTS driving sides and canonical
// orderings.
package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/schema"
)

// PlanQuery returns a plan semantically equivalent to a (same multiset
// of output rows on every database state) chosen to minimize estimated
// cost under oracle's statistics. Per spec.md §7, an unreachable or
// incomplete oracle degrades the estimate but never fails planning: a
// missing table simply costs as an unindexed full scan of zero rows.
func PlanQuery(a ast.AST, sch *schema.Schema, oracle Oracle) (ast.AST, error) {
	normalized, err := normalize(a, sch)
	if err != nil {
		return ast.AST{}, ivmerr.Planner.Wrap(err)
	}

	candidates := enumerate(normalized)
	best := candidates[0]
	bestCost := cost(best, sch, oracle)
	for _, c := range candidates[1:] {
		cc := cost(c, sch, oracle)
		if cc < bestCost || (cc == bestCost && lessTieBreak(c, best, sch, oracle)) {
			best, bestCost = c, cc
		}
	}
	return best, nil
}

// normalize canonicalizes orderBy (appending the primary-key tiebreak)
// and flattens nested AND trees, recursing into every Related subquery.
// Full where-conjunct push-down and common-subexpression factoring
// (spec.md §4.4 step 1) are not implemented: see DESIGN.md's planner
// entry for why that scope was cut.
func normalize(a ast.AST, sch *schema.Schema) (ast.AST, error) {
	out := a
	if sch != nil {
		if t, err := sch.Table(a.Table); err == nil {
			out = ast.WithPrimaryKeyTiebreak(out, t.PrimaryKey)
		}
	}
	out.Where = flatten(out.Where)

	related := make([]ast.Related, len(out.Related))
	for i, r := range out.Related {
		related[i] = r
		if r.Subquery != nil {
			childTable := r.Subquery.Table
			var childSchema *schema.Schema
			if sch != nil {
				childSchema = sch
			}
			normalizedChild, err := normalize(*r.Subquery, childSchema)
			if err != nil {
				return ast.AST{}, err
			}
			_ = childTable
			related[i].Subquery = &normalizedChild
		}
	}
	out.Related = related
	return out, nil
}

// flatten collapses AndExpr(AndExpr(x, y), z) into AndExpr(x, y, z) and
// sorts its conditions into a canonical order; AND is commutative, so
// this changes nothing observable while giving later tie-breaking a
// stable signature to compare.
func flatten(e ast.Expr) ast.Expr {
	switch v := e.(type) {
	case nil:
		return nil
	case ast.AndExpr:
		var conds []ast.Expr
		for _, c := range v.Conditions {
			flat := flatten(c)
			if and, ok := flat.(ast.AndExpr); ok {
				conds = append(conds, and.Conditions...)
			} else {
				conds = append(conds, flat)
			}
		}
		sort.Slice(conds, func(i, j int) bool {
			return signature(conds[i]) < signature(conds[j])
		})
		return ast.AndExpr{Conditions: conds, Extra: v.Extra}
	case ast.OrExpr:
		conds := make([]ast.Expr, len(v.Conditions))
		for i, c := range v.Conditions {
			conds[i] = flatten(c)
		}
		return ast.OrExpr{Conditions: conds, Extra: v.Extra}
	case ast.NotExpr:
		return ast.NotExpr{Condition: flatten(v.Condition), Extra: v.Extra}
	case ast.ExistsExpr:
		if v.Related.Subquery != nil {
			normalizedChild, err := normalize(*v.Related.Subquery, nil)
			if err == nil {
				v.Related.Subquery = &normalizedChild
			}
		}
		return v
	default:
		return e
	}
}

// signature renders a deterministic string for an expression, used only
// to order AND conditions and to break cost ties — never for equality
// or hashing of semantic content.
func signature(e ast.Expr) string {
	switch v := e.(type) {
	case ast.SimpleExpr:
		return fmt.Sprintf("simple:%s:%s:%v", v.Column, v.Op, v.Value.Any())
	case ast.AndExpr:
		s := "and("
		for _, c := range v.Conditions {
			s += signature(c) + ","
		}
		return s + ")"
	case ast.OrExpr:
		s := "or("
		for _, c := range v.Conditions {
			s += signature(c) + ","
		}
		return s + ")"
	case ast.NotExpr:
		return "not(" + signature(v.Condition) + ")"
	case ast.ExistsExpr:
		return fmt.Sprintf("exists(flip=%v,negated=%v,table=%s)", v.Flip, v.Negated, v.Related.Subquery.Table)
	default:
		return ""
	}
}

// enumerate produces every candidate plan reachable by choosing
// flip ∈ {false, true} independently for each correlated EXISTS node in
// the AST's Where and in each Related subquery's Where (spec.md §4.4
// step 2). Other enumeration axes named in
// spec.md (per-table index ordering, join driving side) collapse into
// this one axis for a schema whose only two-input operator is Exists;
// see DESIGN.md.
func enumerate(a ast.AST) []ast.AST {
	nodes := countExistsNodes(a.Where) + countExistsInRelated(a.Related)
	if nodes == 0 {
		return []ast.AST{a}
	}
	if nodes > 10 {
		nodes = 10 // cap combinatorial blow-up; beyond this the default flip=false plan is used for the remainder
	}
	var out []ast.AST
	for mask := 0; mask < (1 << nodes); mask++ {
		idx := 0
		candidate := a
		candidate.Where = rewriteFlips(a.Where, mask, &idx)
		if len(a.Related) > 0 {
			candidate.Related = make([]ast.Related, len(a.Related))
			for i, r := range a.Related {
				candidate.Related[i] = r
				if r.Subquery != nil {
					sub := *r.Subquery
					sub.Where = rewriteFlips(sub.Where, mask, &idx)
					candidate.Related[i].Subquery = &sub
				}
			}
		}
		out = append(out, candidate)
	}
	return out
}

func countExistsNodes(e ast.Expr) int {
	switch v := e.(type) {
	case ast.AndExpr:
		n := 0
		for _, c := range v.Conditions {
			n += countExistsNodes(c)
		}
		return n
	case ast.OrExpr:
		n := 0
		for _, c := range v.Conditions {
			n += countExistsNodes(c)
		}
		return n
	case ast.NotExpr:
		return countExistsNodes(v.Condition)
	case ast.ExistsExpr:
		return 1
	default:
		return 0
	}
}

func countExistsInRelated(rels []ast.Related) int {
	n := 0
	for _, r := range rels {
		if r.Subquery != nil {
			n += countExistsNodes(r.Subquery.Where)
		}
	}
	return n
}

func rewriteFlips(e ast.Expr, mask int, idx *int) ast.Expr {
	switch v := e.(type) {
	case ast.AndExpr:
		conds := make([]ast.Expr, len(v.Conditions))
		for i, c := range v.Conditions {
			conds[i] = rewriteFlips(c, mask, idx)
		}
		return ast.AndExpr{Conditions: conds, Extra: v.Extra}
	case ast.OrExpr:
		conds := make([]ast.Expr, len(v.Conditions))
		for i, c := range v.Conditions {
			conds[i] = rewriteFlips(c, mask, idx)
		}
		return ast.OrExpr{Conditions: conds, Extra: v.Extra}
	case ast.NotExpr:
		return ast.NotExpr{Condition: rewriteFlips(v.Condition, mask, idx), Extra: v.Extra}
	case ast.ExistsExpr:
		bit := *idx
		*idx++
		flip := bit < 10 && mask&(1<<uint(bit)) != 0
		v.Flip = flip
		return v
	default:
		return e
	}
}

// cost estimates an AST's evaluation cost as the sum, over every table
// access, of an amount proportional to the rows it must iterate:
// indexed lookups cost log(n)+k, scans cost n, and each EXISTS adds its
// driving side's iteration cost plus a per-row correlated lookup on the
// other side (spec.md §4.4 step 3).
func cost(a ast.AST, sch *schema.Schema, oracle Oracle) float64 {
	pk := pkFor(a.Table, sch)
	c := scanCost(a.Table, pk, oracle)
	c += costExpr(a.Where, a.Table, sch, oracle)
	for _, r := range a.Related {
		if r.Subquery != nil {
			c += cost(*r.Subquery, sch, oracle)
		}
	}
	return c
}

func pkFor(table string, sch *schema.Schema) []string {
	if sch == nil {
		return nil
	}
	if t, err := sch.Table(table); err == nil {
		return t.PrimaryKey
	}
	return nil
}

func scanCost(table string, pk []string, oracle Oracle) float64 {
	if oracle == nil {
		return 0
	}
	n := float64(oracle.RowCount(table))
	if n <= 0 {
		return 0
	}
	if len(pk) > 0 && oracle.HasIndex(table, pk) {
		return math.Log2(n+1) + 1
	}
	return n
}

func costExpr(e ast.Expr, table string, sch *schema.Schema, oracle Oracle) float64 {
	switch v := e.(type) {
	case ast.AndExpr:
		c := 0.0
		for _, cond := range v.Conditions {
			c += costExpr(cond, table, sch, oracle)
		}
		return c
	case ast.OrExpr:
		c := 0.0
		for _, cond := range v.Conditions {
			c += costExpr(cond, table, sch, oracle)
		}
		return c
	case ast.NotExpr:
		return costExpr(v.Condition, table, sch, oracle)
	case ast.ExistsExpr:
		return costExists(v, table, sch, oracle)
	default:
		return 0
	}
}

func costExists(e ast.ExistsExpr, parentTable string, sch *schema.Schema, oracle Oracle) float64 {
	if e.Related.Subquery == nil || oracle == nil {
		return 0
	}
	childTable := e.Related.Subquery.Table
	parentRows := float64(oracle.RowCount(parentTable))
	childRows := float64(oracle.RowCount(childTable))

	if !e.Flip {
		// Drive from the parent: one lookup into child per parent row.
		lookup := childRows
		if oracle.HasIndex(childTable, e.Related.Correlation.ChildFields) {
			lookup = math.Log2(childRows + 1)
		}
		return parentRows * (1 + lookup)
	}
	// Drive from the child: one lookup into parent per child row.
	lookup := parentRows
	if oracle.HasIndex(parentTable, e.Related.Correlation.ParentFields) {
		lookup = math.Log2(parentRows + 1)
	}
	return childRows * (1 + lookup)
}

// lessTieBreak implements spec.md §4.4 step 4's deterministic tie-break:
// prefer indexed plans, then the plan whose root table has the smaller
// row count, then lexicographic order of the rewritten AST's signature.
// The row-count step does not look at which side each EXISTS drives
// from, so candidates that differ only in flip choices tie on it.
func lessTieBreak(a, b ast.AST, sch *schema.Schema, oracle Oracle) bool {
	ai, bi := indexedAccessCount(a, sch, oracle), indexedAccessCount(b, sch, oracle)
	if ai != bi {
		return ai > bi
	}
	ad, bd := drivingSideEstimate(a, oracle), drivingSideEstimate(b, oracle)
	if ad != bd {
		return ad < bd
	}
	return signature(a.Where) < signature(b.Where)
}

func indexedAccessCount(a ast.AST, sch *schema.Schema, oracle Oracle) int {
	if oracle == nil {
		return 0
	}
	n := 0
	if oracle.HasIndex(a.Table, pkFor(a.Table, sch)) {
		n++
	}
	for _, r := range a.Related {
		if r.Subquery != nil {
			n += indexedAccessCount(*r.Subquery, sch, oracle)
		}
	}
	return n
}

func drivingSideEstimate(a ast.AST, oracle Oracle) float64 {
	if oracle == nil {
		return 0
	}
	return float64(oracle.RowCount(a.Table))
}
