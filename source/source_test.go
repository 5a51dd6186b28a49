package source_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/schema"
	"github.com/zerosync/ivmengine/source"
)

func issuesTable() schema.Table {
	return schema.Table{
		Name:       "issues",
		Columns:    []schema.Column{{Name: "id"}, {Name: "priority"}},
		PrimaryKey: []string{"id"},
	}
}

func issueRow(id string, priority int64) row.Row {
	return row.New([]string{"id", "priority"}, map[string]row.Value{"id": row.String(id), "priority": row.Int(priority)})
}

type recordingListener struct {
	seen []change.Change
}

func (l *recordingListener) OnSourceChange(c change.Change) error {
	l.seen = append(l.seen, c)
	return nil
}

func TestConnectSnapshotReflectsPriorRowsInOrder(t *testing.T) {
	src := source.New(issuesTable(), nil)
	require.NoError(t, src.Push(change.NewAdd(issueRow("i2", 2))))
	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))

	l := &recordingListener{}
	sub := src.Connect([]ast.OrderTerm{{Column: "priority"}}, l, nil)

	snap := sub.Snapshot()
	require.Len(t, snap, 2)
	id0, _ := snap[0].Get("id")
	s0, _ := id0.String()
	require.Equal(t, "i1", s0)
}

func TestPushNotifiesLiveSubscribers(t *testing.T) {
	src := source.New(issuesTable(), nil)
	l := &recordingListener{}
	src.Connect(nil, l, nil)

	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))
	require.Len(t, l.seen, 1)
	require.Equal(t, change.Add, l.seen[0].Kind)
}

func TestPushRejectsDuplicatePrimaryKey(t *testing.T) {
	src := source.New(issuesTable(), nil)
	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))
	require.Error(t, src.Push(change.NewAdd(issueRow("i1", 2))))
}

func TestPushRemoveOnUnknownRowFails(t *testing.T) {
	src := source.New(issuesTable(), nil)
	require.Error(t, src.Push(change.NewRemove(issueRow("ghost", 0))))
}

func TestPushEditRejectsPrimaryKeyChange(t *testing.T) {
	src := source.New(issuesTable(), nil)
	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))
	err := src.Push(change.NewEdit(issueRow("i1", 1), issueRow("i2", 1)))
	require.Error(t, err)
}

func TestUnsubscribeStopsFurtherNotifications(t *testing.T) {
	src := source.New(issuesTable(), nil)
	l := &recordingListener{}
	sub := src.Connect(nil, l, nil)
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))
	require.Empty(t, l.seen)
}

func TestCommitFiresOnCommitOnceInRegistrationOrder(t *testing.T) {
	src := source.New(issuesTable(), nil)
	var order []int
	hook1 := &commitRecorder{id: 1, order: &order}
	hook2 := &commitRecorder{id: 2, order: &order}
	src.Connect(nil, hook1, nil)
	src.Connect(nil, hook2, nil)

	src.Commit()
	require.Equal(t, []int{1, 2}, order)
}

type commitRecorder struct {
	id    int
	order *[]int
}

func (c *commitRecorder) OnSourceChange(change.Change) error { return nil }
func (c *commitRecorder) OnCommit()                          { *c.order = append(*c.order, c.id) }

func TestFilterHintExcludesNonMatchingRowsFromSnapshot(t *testing.T) {
	src := source.New(issuesTable(), nil)
	require.NoError(t, src.Push(change.NewAdd(issueRow("i1", 1))))
	require.NoError(t, src.Push(change.NewAdd(issueRow("i2", 5))))

	filter := func(r row.Row) bool {
		v, _ := r.Get("priority")
		p, _ := v.Int()
		return p > 2
	}
	l := &recordingListener{}
	sub := src.Connect(nil, l, filter)
	snap := sub.Snapshot()
	require.Len(t, snap, 1)
}
