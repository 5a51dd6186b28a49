package ast

import "github.com/zerosync/ivmengine/row"

// Op is a comparison operator usable inside a SimpleExpr.
type Op string

const (
	OpEQ     Op = "="
	OpNEQ    Op = "!="
	OpLT     Op = "<"
	OpLTE    Op = "<="
	OpGT     Op = ">"
	OpGTE    Op = ">="
	OpIS     Op = "IS"
	OpISNOT  Op = "IS NOT"
	OpLIKE   Op = "LIKE"
	OpILIKE  Op = "ILIKE"
)

// Expr is a boolean expression node. The concrete types below are the
// closed set spec.md §3/§6 names: column comparisons, IS/IS NOT,
// LIKE/ILIKE, logical AND/OR/NOT, and correlated EXISTS subqueries.
type Expr interface {
	exprNode()
}

// SimpleExpr compares a column against a literal value.
type SimpleExpr struct {
	Column string
	Op     Op
	Value  row.Value
	Extra  map[string]any
}

func (SimpleExpr) exprNode() {}

// AndExpr is true iff every condition is true.
type AndExpr struct {
	Conditions []Expr
	Extra      map[string]any
}

func (AndExpr) exprNode() {}

// OrExpr is true iff at least one condition is true.
type OrExpr struct {
	Conditions []Expr
	Extra      map[string]any
}

func (OrExpr) exprNode() {}

// NotExpr negates its single condition.
type NotExpr struct {
	Condition Expr
	Extra     map[string]any
}

func (NotExpr) exprNode() {}

// Correlation describes how a subquery's rows relate to its parent:
// equal-length parent/child field lists, analogous to a Connection but
// scoped to one correlated subquery rather than a persistent schema
// relationship.
type Correlation struct {
	ParentFields []string
	ChildFields  []string
}

// RelatedSystem distinguishes client-authored nested result sets from
// server-injected permission filters, per spec.md §3.
type RelatedSystem string

const (
	SystemClient     RelatedSystem = "client"
	SystemPermission RelatedSystem = "permission"
)

// Related adds a nested result set (a join target) to an AST.
type Related struct {
	System      RelatedSystem
	Subquery    *AST
	Correlation Correlation
	// RelationshipName optionally names the schema relationship this
	// Related expands, used by the planner to recognize junctions.
	RelationshipName string
}

// ExistsExpr is a correlated EXISTS (or NOT EXISTS) subquery. Flip
// records the planner's (or the caller's) hint to drive existence
// checks from the child side; it changes cost, never semantics.
type ExistsExpr struct {
	Related Related
	Flip    bool
	Negated bool
	Extra   map[string]any
}

func (ExistsExpr) exprNode() {}
