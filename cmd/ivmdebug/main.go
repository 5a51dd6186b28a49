// Command ivmdebug plans a fixture query against a fixture schema and
// prints the resulting AST as a tree, as a standalone inspection tool.
package main

import (
	"fmt"
	"os"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/planner"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/schema"
)

func fixtureSchema() *schema.Schema {
	return schema.New(
		schema.Table{
			Name:       "issues",
			Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "ownerId", Type: schema.TypeString}, {Name: "closed", Type: schema.TypeBool}},
			PrimaryKey: []string{"id"},
			Relationships: map[string]schema.Relationship{
				"comments": {
					Name: "comments",
					Connections: []schema.Connection{
						{SourceFields: []string{"id"}, DestFields: []string{"issueId"}, DestTable: "comments", Cardinality: schema.Many},
					},
				},
			},
		},
		schema.Table{
			Name:       "comments",
			Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "issueId", Type: schema.TypeString}},
			PrimaryKey: []string{"id"},
		},
	)
}

func fixtureQuery() ast.AST {
	return ast.AST{
		Table: "issues",
		Where: ast.SimpleExpr{Column: "closed", Op: ast.OpEQ, Value: row.Bool(false)},
		Related: []ast.Related{
			{
				RelationshipName: "comments",
				Correlation:      ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"issueId"}},
				Subquery:         &ast.AST{Table: "comments"},
			},
		},
	}
}

func main() {
	sch := fixtureSchema()
	oracle := planner.NewStaticOracle()
	oracle.RowCounts["issues"] = 50_000
	oracle.RowCounts["comments"] = 2_000_000

	planned, err := planner.PlanQuery(fixtureQuery(), sch, oracle)
	if err != nil {
		fmt.Fprintln(os.Stderr, "plan failed:", err)
		os.Exit(1)
	}

	t := renderAST(planned)
	fmt.Println(t.String())
}

func renderAST(a ast.AST) *tree.Tree {
	root := tree.NewTree(tree.NodeString(fmt.Sprintf("table=%s", a.Table)))

	if a.Where != nil {
		addChild(root, fmt.Sprintf("where: %s", renderExpr(a.Where)))
	}
	for _, term := range a.OrderBy {
		dir := "asc"
		if term.Desc {
			dir = "desc"
		}
		addChild(root, fmt.Sprintf("orderBy: %s %s", term.Column, dir))
	}
	if a.Limit != nil {
		addChild(root, fmt.Sprintf("limit: %d", *a.Limit))
	}
	for _, rel := range a.Related {
		relNode := root.AddChild(tree.NodeString(fmt.Sprintf("related=%s", rel.RelationshipName)))
		if rel.Subquery != nil {
			attachSubtree(relNode, renderAST(*rel.Subquery))
		}
	}
	return root
}

func addChild(parent *tree.Tree, label string) {
	parent.AddChild(tree.NodeString(label))
}

func attachSubtree(parent *tree.Tree, sub *tree.Tree) {
	newChild := parent.AddChild(sub.Val())
	for _, grandchild := range sub.Children() {
		attachSubtree(newChild, grandchild)
	}
}

func renderExpr(e ast.Expr) string {
	switch v := e.(type) {
	case ast.SimpleExpr:
		return fmt.Sprintf("%s %s %v", v.Column, v.Op, v.Value.Any())
	case ast.AndExpr:
		return joinExprs(v.Conditions, " AND ")
	case ast.OrExpr:
		return joinExprs(v.Conditions, " OR ")
	case ast.NotExpr:
		return "NOT " + renderExpr(v.Condition)
	case ast.ExistsExpr:
		label := "EXISTS"
		if v.Negated {
			label = "NOT EXISTS"
		}
		if v.Flip {
			label += "(flip)"
		}
		return label
	default:
		return fmt.Sprintf("%T", e)
	}
}

func joinExprs(exprs []ast.Expr, sep string) string {
	out := ""
	for i, e := range exprs {
		if i > 0 {
			out += sep
		}
		out += renderExpr(e)
	}
	return out
}
