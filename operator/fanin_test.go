package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

func idRow(id string) row.Row {
	return row.New([]string{"id"}, map[string]row.Value{"id": row.String(id)})
}

func TestFanInDeduplicatesSharedAdd(t *testing.T) {
	f := NewFanIn([]string{"id"}, 2)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	branchA := f.Branch()
	branchB := f.Branch()

	require.NoError(t, branchA.Push(change.NewAdd(idRow("1"))))
	require.NoError(t, branchB.Push(change.NewAdd(idRow("1"))))

	require.Len(t, rec.pushed, 1, "second branch's add for the same key must not re-emit")
	require.Equal(t, 2, f.RefCount(idRow("1").PrimaryKey([]string{"id"}).String()))
}

func TestFanInEmitsRemoveOnlyWhenLastRefDrops(t *testing.T) {
	f := NewFanIn([]string{"id"}, 2)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	branchA := f.Branch()
	branchB := f.Branch()

	require.NoError(t, branchA.Push(change.NewAdd(idRow("1"))))
	require.NoError(t, branchB.Push(change.NewAdd(idRow("1"))))
	require.NoError(t, branchA.Push(change.NewRemove(idRow("1"))))
	require.Len(t, rec.pushed, 1, "row is still justified by branch B")

	require.NoError(t, branchB.Push(change.NewRemove(idRow("1"))))
	require.Len(t, rec.pushed, 2)
	require.Equal(t, change.Remove, rec.pushed[1].Kind)
}

func TestFanInRefCountNeverNegative(t *testing.T) {
	f := NewFanIn([]string{"id"}, 1)
	branch := f.Branch()

	err := branch.Push(change.NewRemove(idRow("1")))
	require.Error(t, err)
	require.GreaterOrEqual(t, f.RefCount(idRow("1").PrimaryKey([]string{"id"}).String()), 0)
}
