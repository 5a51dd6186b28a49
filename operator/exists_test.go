package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

func ownerRow(id string) row.Row {
	return row.New([]string{"id"}, map[string]row.Value{"id": row.String(id)})
}

func petRow(ownerID, petID string) row.Row {
	return row.New([]string{"ownerId", "id"}, map[string]row.Value{
		"ownerId": row.String(ownerID),
		"id":      row.String(petID),
	})
}

func correlation() ast.Correlation {
	return ast.Correlation{ParentFields: []string{"id"}, ChildFields: []string{"ownerId"}}
}

func TestExistsEmitsAddWhenFirstChildArrives(t *testing.T) {
	parent := &fakeSource{}
	child := &fakeSource{}
	e := NewExists(parent, child, correlation(), false, false)
	rec := &recordingConsumer{}
	e.Subscribe(rec)

	require.NoError(t, e.pushParent(change.NewAdd(ownerRow("1"))))
	require.Empty(t, rec.pushed, "no child yet, parent must not pass")

	require.NoError(t, e.pushChild(change.NewAdd(petRow("1", "p1"))))
	require.Len(t, rec.pushed, 1)
	require.Equal(t, change.Add, rec.pushed[0].Kind)
}

func TestExistsEmitsRemoveWhenLastChildRemoved(t *testing.T) {
	parent := &fakeSource{}
	child := &fakeSource{}
	e := NewExists(parent, child, correlation(), false, false)
	rec := &recordingConsumer{}
	e.Subscribe(rec)

	require.NoError(t, e.pushParent(change.NewAdd(ownerRow("1"))))
	require.NoError(t, e.pushChild(change.NewAdd(petRow("1", "p1"))))
	require.NoError(t, e.pushChild(change.NewRemove(petRow("1", "p1"))))

	require.Len(t, rec.pushed, 2)
	require.Equal(t, change.Remove, rec.pushed[1].Kind)
}

func TestExistsNegatedPassesWhenNoChildren(t *testing.T) {
	parent := &fakeSource{}
	child := &fakeSource{}
	e := NewExists(parent, child, correlation(), false, true)
	rec := &recordingConsumer{}
	e.Subscribe(rec)

	require.NoError(t, e.pushParent(change.NewAdd(ownerRow("1"))))
	require.Len(t, rec.pushed, 1, "negated exists passes parents with zero children")

	require.NoError(t, e.pushChild(change.NewAdd(petRow("1", "p1"))))
	require.Len(t, rec.pushed, 2)
	require.Equal(t, change.Remove, rec.pushed[1].Kind)
}
