package change_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

func issueRow(id string) row.Row {
	return row.New([]string{"id"}, map[string]row.Value{"id": row.String(id)})
}

func TestConstructorsSetExpectedKindAndFields(t *testing.T) {
	add := change.NewAdd(issueRow("i1"))
	require.Equal(t, change.Add, add.Kind)

	remove := change.NewRemove(issueRow("i1"))
	require.Equal(t, change.Remove, remove.Kind)

	edit := change.NewEdit(issueRow("i1"), issueRow("i1"))
	require.Equal(t, change.Edit, edit.Kind)

	inner := change.NewAdd(issueRow("c1"))
	child := change.NewChild(issueRow("i1"), "comments", inner)
	require.Equal(t, change.Child, child.Kind)
	require.Equal(t, "comments", child.RelationshipName)
	require.NotNil(t, child.ChildChange)
	require.Equal(t, change.Add, child.ChildChange.Kind)
}

func TestKindStringNamesEveryVariant(t *testing.T) {
	require.Equal(t, "add", change.Add.String())
	require.Equal(t, "remove", change.Remove.String())
	require.Equal(t, "edit", change.Edit.String())
	require.Equal(t, "child", change.Child.String())
}
