package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/schema"
	"github.com/zerosync/ivmengine/source"
)

func issuesSchema() *schema.Schema {
	return schema.New(schema.Table{
		Name:       "issues",
		Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "ownerId", Type: schema.TypeString}, {Name: "closed", Type: schema.TypeBool}},
		PrimaryKey: []string{"id"},
	})
}

func issueRow(id, owner string, closed bool) row.Row {
	return row.New([]string{"id", "ownerId", "closed"}, map[string]row.Value{
		"id":      row.String(id),
		"ownerId": row.String(owner),
		"closed":  row.Bool(closed),
	})
}

func newEngineWithIssues(t *testing.T) (*Engine, *source.Source) {
	sch := issuesSchema()
	e := New(sch)
	tbl, err := sch.Table("issues")
	require.NoError(t, err)
	src := source.New(tbl, nil)
	e.AddSource("issues", src)
	return e, src
}

func TestMaterializeHydratesSynchronously(t *testing.T) {
	e, src := newEngineWithIssues(t)
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i1", "u1", false)}))
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i2", "u1", true)}))

	v, err := e.Materialize(ast.AST{Table: "issues"})
	require.NoError(t, err)
	require.Len(t, v.Snapshot(), 2)
}

func TestMaterializeAppliesWherePredicate(t *testing.T) {
	e, src := newEngineWithIssues(t)
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i1", "u1", false)}))
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i2", "u1", true)}))

	v, err := e.Materialize(ast.AST{
		Table: "issues",
		Where: ast.SimpleExpr{Column: "closed", Op: ast.OpEQ, Value: row.Bool(false)},
	})
	require.NoError(t, err)
	snap := v.Snapshot()
	require.Len(t, snap, 1)
	val, _ := snap[0].Get("id")
	id, _ := val.String()
	require.Equal(t, "i1", id)
}

func TestRunUnknownReturnsImmediateSnapshot(t *testing.T) {
	e, src := newEngineWithIssues(t)
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i1", "u1", false)}))

	rows, err := e.Run(ast.AST{Table: "issues"}, RunUnknown)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestPreloadReusesViewForIdenticalAST(t *testing.T) {
	e, src := newEngineWithIssues(t)
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i1", "u1", false)}))

	a := ast.AST{Table: "issues"}
	require.NoError(t, e.Preload(a, time.Minute))
	require.NoError(t, e.Preload(a, time.Minute))
	require.Len(t, e.preloaded, 1)
	require.NoError(t, e.Close())
}

func TestCloseDestroysPreloadedViews(t *testing.T) {
	e, src := newEngineWithIssues(t)
	require.NoError(t, src.Push(change.Change{Kind: change.Add, Row: issueRow("i1", "u1", false)}))

	require.NoError(t, e.Preload(ast.AST{Table: "issues"}, time.Minute))
	require.NoError(t, e.Close())
	require.Empty(t, e.preloaded)
}

func TestMaterializeUnknownTableFails(t *testing.T) {
	e := New(issuesSchema())
	_, err := e.Materialize(ast.AST{Table: "nope"})
	require.Error(t, err)
}

func TestMaterializeRejectsExistsUnderOr(t *testing.T) {
	e, _ := newEngineWithIssues(t)
	_, err := e.Materialize(ast.AST{
		Table: "issues",
		Where: ast.OrExpr{Conditions: []ast.Expr{
			ast.SimpleExpr{Column: "closed", Op: ast.OpEQ, Value: row.Bool(true)},
			ast.ExistsExpr{Related: ast.Related{Subquery: &ast.AST{Table: "issues"}, Correlation: ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"id"}}}},
		}},
	})
	require.Error(t, err)
}

// authorsAndBooksSchema gives books a primary key column ("isbn") whose
// name differs from its parent table's ("id"), so a Related query only
// works if Join keys child rows by the child table's own primary key.
func authorsAndBooksSchema() *schema.Schema {
	return schema.New(
		schema.Table{
			Name:       "authors",
			Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "name", Type: schema.TypeString}},
			PrimaryKey: []string{"id"},
		},
		schema.Table{
			Name:       "books",
			Columns:    []schema.Column{{Name: "isbn", Type: schema.TypeString}, {Name: "authorId", Type: schema.TypeString}, {Name: "title", Type: schema.TypeString}},
			PrimaryKey: []string{"isbn"},
		},
	)
}

func authorRowE(id, name string) row.Row {
	return row.New([]string{"id", "name"}, map[string]row.Value{"id": row.String(id), "name": row.String(name)})
}

func bookRowE(isbn, authorID, title string) row.Row {
	return row.New([]string{"isbn", "authorId", "title"}, map[string]row.Value{
		"isbn":     row.String(isbn),
		"authorId": row.String(authorID),
		"title":    row.String(title),
	})
}

// TestMaterializeWithRelatedAttachesNestedChildren covers a Related
// query end-to-end: hydration must not panic when a parent row already
// has children in the source, and a child pushed after hydration must
// attach to its real parent row rather than a placeholder with no
// values.
func TestMaterializeWithRelatedAttachesNestedChildren(t *testing.T) {
	sch := authorsAndBooksSchema()
	e := New(sch)
	authorsSrc := source.New(sch.MustTable("authors"), nil)
	booksSrc := source.New(sch.MustTable("books"), nil)
	e.AddSource("authors", authorsSrc)
	e.AddSource("books", booksSrc)

	require.NoError(t, authorsSrc.Push(change.NewAdd(authorRowE("a1", "Le Guin"))))
	require.NoError(t, booksSrc.Push(change.NewAdd(bookRowE("978-1", "a1", "The Dispossessed"))))

	a := ast.AST{
		Table: "authors",
		Related: []ast.Related{{
			RelationshipName: "books",
			Subquery:         &ast.AST{Table: "books"},
			Correlation:      ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"authorId"}},
		}},
	}

	view, err := e.Materialize(a)
	require.NoError(t, err)

	snap := view.Snapshot()
	require.Len(t, snap, 1, "hydration over a parent row with an existing child must not panic")

	require.NoError(t, booksSrc.Push(change.NewAdd(bookRowE("978-2", "a1", "The Left Hand of Darkness"))))
	booksSrc.Commit()

	snap = view.Snapshot()
	require.Len(t, snap, 1)
	jv, ok := snap[0].Get("books")
	require.True(t, ok, "a child pushed live must attach to its real parent row")
	tree, _ := jv.JSONTree()
	children, ok := tree.([]row.Row)
	require.True(t, ok)
	require.Len(t, children, 1)
	title, _ := children[0].Get("title")
	s, _ := title.String()
	require.Equal(t, "The Left Hand of Darkness", s)
}

func commentsSchema() *schema.Schema {
	return schema.New(
		schema.Table{
			Name:       "issues",
			Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "ownerId", Type: schema.TypeString}, {Name: "closed", Type: schema.TypeBool}},
			PrimaryKey: []string{"id"},
		},
		schema.Table{
			Name:       "comments",
			Columns:    []schema.Column{{Name: "id", Type: schema.TypeString}, {Name: "issueId", Type: schema.TypeString}, {Name: "authorId", Type: schema.TypeString}},
			PrimaryKey: []string{"id"},
		},
	)
}

func commentRow(id, issueID, authorID string) row.Row {
	return row.New([]string{"id", "issueId", "authorId"}, map[string]row.Value{
		"id":       row.String(id),
		"issueId":  row.String(issueID),
		"authorId": row.String(authorID),
	})
}

// TestMaterializeOrOfExistsFansOutAndIn covers an OR of two correlated
// EXISTS terms: an issue must pass if EITHER a comment from "u1" OR a
// comment from "u2" exists on it, and a row matched by both branches
// must still surface exactly once (fan-in dedup).
func TestMaterializeOrOfExistsFansOutAndIn(t *testing.T) {
	sch := commentsSchema()
	e := New(sch)
	issuesSrc := source.New(sch.MustTable("issues"), nil)
	commentsSrc := source.New(sch.MustTable("comments"), nil)
	e.AddSource("issues", issuesSrc)
	e.AddSource("comments", commentsSrc)

	require.NoError(t, issuesSrc.Push(change.NewAdd(issueRow("i1", "owner", false))))
	require.NoError(t, issuesSrc.Push(change.NewAdd(issueRow("i2", "owner", false))))
	require.NoError(t, issuesSrc.Push(change.NewAdd(issueRow("i3", "owner", false))))

	require.NoError(t, commentsSrc.Push(change.NewAdd(commentRow("c1", "i1", "u1"))))
	require.NoError(t, commentsSrc.Push(change.NewAdd(commentRow("c2", "i2", "u2"))))
	require.NoError(t, commentsSrc.Push(change.NewAdd(commentRow("c3", "i1", "u2"))))

	existsFrom := func(author string) ast.Expr {
		return ast.ExistsExpr{Related: ast.Related{
			Subquery: &ast.AST{
				Table: "comments",
				Where: ast.SimpleExpr{Column: "authorId", Op: ast.OpEQ, Value: row.String(author)},
			},
			Correlation: ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"issueId"}},
		}}
	}

	v, err := e.Materialize(ast.AST{
		Table: "issues",
		Where: ast.OrExpr{Conditions: []ast.Expr{existsFrom("u1"), existsFrom("u2")}},
	})
	require.NoError(t, err)

	snap := v.Snapshot()
	ids := make([]string, 0, len(snap))
	for _, r := range snap {
		val, _ := r.Get("id")
		s, _ := val.String()
		ids = append(ids, s)
	}
	require.ElementsMatch(t, []string{"i1", "i2"}, ids, "i1 matches both branches and must surface once; i3 matches neither")
}
