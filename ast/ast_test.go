package ast_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/row"
)

var valueComparer = cmp.Comparer(func(a, b row.Value) bool {
	return a.IsNull() == b.IsNull() && row.Compare(a, b) == 0
})

func TestMarshalUnmarshalASTRoundTrips(t *testing.T) {
	limit := 20
	start := ast.NewStart([]row.Value{row.String("i100")}, true)
	in := ast.AST{
		Table: "issues",
		Where: ast.AndExpr{Conditions: []ast.Expr{
			ast.SimpleExpr{Column: "closed", Op: ast.OpEQ, Value: row.Bool(false)},
			ast.NotExpr{Condition: ast.SimpleExpr{Column: "ownerId", Op: ast.OpEQ, Value: row.String("u1")}},
		}},
		Related: []ast.Related{
			{
				System:           ast.SystemClient,
				RelationshipName: "comments",
				Correlation:      ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"issueId"}},
				Subquery:         &ast.AST{Table: "comments"},
			},
		},
		OrderBy: []ast.OrderTerm{{Column: "createdAt", Desc: true}},
		Limit:   &limit,
		Start:   &start,
	}

	encoded, err := ast.MarshalAST(in)
	require.NoError(t, err)

	out, err := ast.UnmarshalAST(encoded)
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(in, out, valueComparer))
}

func TestUnmarshalExprPreservesUnknownFieldsInExtra(t *testing.T) {
	data := []byte(`{"type":"simple","left":{"type":"column","name":"id"},"op":"=","right":{"type":"literal","value":"i1"},"serverInjected":true}`)
	e, err := ast.UnmarshalExpr(data)
	require.NoError(t, err)

	simple, ok := e.(ast.SimpleExpr)
	require.True(t, ok)
	require.Equal(t, true, simple.Extra["serverInjected"])

	reencoded, err := ast.MarshalExpr(simple)
	require.NoError(t, err)
	require.Contains(t, string(reencoded), `"serverInjected":true`)
}

func TestUnmarshalASTDefaultsAbsentStartInclusiveToTrue(t *testing.T) {
	data := []byte(`{"table":"issues","start":{"key":["i1"]}}`)
	a, err := ast.UnmarshalAST(data)
	require.NoError(t, err)
	require.NotNil(t, a.Start)
	require.True(t, a.Start.Inclusive)
}

func TestValidateRejectsNegativeLimit(t *testing.T) {
	limit := -1
	err := ast.Validate(ast.AST{Table: "issues", Limit: &limit})
	require.Error(t, err)
}

func TestValidateRejectsMismatchedStartKeyLength(t *testing.T) {
	start := ast.NewStart([]row.Value{row.String("a"), row.String("b")}, true)
	a := ast.AST{
		Table:   "issues",
		OrderBy: []ast.OrderTerm{{Column: "createdAt"}},
		Start:   &start,
	}
	require.Error(t, ast.Validate(a))
}

func TestValidateJunctionInnerRejectsLimitAndOrderBy(t *testing.T) {
	limit := 10
	require.Error(t, ast.ValidateJunctionInner(ast.AST{Table: "tags", Limit: &limit}))
	require.Error(t, ast.ValidateJunctionInner(ast.AST{Table: "tags", OrderBy: []ast.OrderTerm{{Column: "name"}}}))
	require.NoError(t, ast.ValidateJunctionInner(ast.AST{Table: "tags"}))
}

func TestEffectiveOrderByFallsBackToPrimaryKey(t *testing.T) {
	terms := ast.EffectiveOrderBy(ast.AST{Table: "issues"}, []string{"id"})
	require.Equal(t, []ast.OrderTerm{{Column: "id"}}, terms)
}

func TestWithPrimaryKeyTiebreakAppendsMissingPKColumns(t *testing.T) {
	a := ast.AST{Table: "issues", OrderBy: []ast.OrderTerm{{Column: "createdAt", Desc: true}}}
	out := ast.WithPrimaryKeyTiebreak(a, []string{"id"})
	require.Equal(t, []ast.OrderTerm{{Column: "createdAt", Desc: true}, {Column: "id"}}, out.OrderBy)
}
