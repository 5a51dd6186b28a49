package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

type recordingConsumer struct {
	pushed []change.Change
}

func (r *recordingConsumer) Push(c change.Change) error {
	r.pushed = append(r.pushed, c)
	return nil
}

type fakeSource struct {
	base
	rows []row.Row
}

func (f *fakeSource) Pull() []row.Row { return f.rows }

func (f *fakeSource) Push(c change.Change) error { return f.emit(c) }

func activeRow(id string, active bool) row.Row {
	return row.New([]string{"id", "active"}, map[string]row.Value{
		"id":     row.String(id),
		"active": row.Bool(active),
	})
}

func evenPredicate(r row.Row) (bool, error) {
	v, _ := r.Get("active")
	b, _ := v.Bool()
	return b, nil
}

func TestFilterEditBothSidesPass(t *testing.T) {
	src := &fakeSource{}
	f := NewFilter(src, evenPredicate)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	err := f.Push(change.NewEdit(activeRow("1", true), activeRow("1", true)))
	require.NoError(t, err)
	require.Len(t, rec.pushed, 1)
	require.Equal(t, change.Edit, rec.pushed[0].Kind)
}

func TestFilterEditPassToFailEmitsRemove(t *testing.T) {
	src := &fakeSource{}
	f := NewFilter(src, evenPredicate)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	err := f.Push(change.NewEdit(activeRow("1", true), activeRow("1", false)))
	require.NoError(t, err)
	require.Len(t, rec.pushed, 1)
	require.Equal(t, change.Remove, rec.pushed[0].Kind)
}

func TestFilterEditFailToPassEmitsAdd(t *testing.T) {
	src := &fakeSource{}
	f := NewFilter(src, evenPredicate)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	err := f.Push(change.NewEdit(activeRow("1", false), activeRow("1", true)))
	require.NoError(t, err)
	require.Len(t, rec.pushed, 1)
	require.Equal(t, change.Add, rec.pushed[0].Kind)
}

func TestFilterEditBothSidesFailEmitsNothing(t *testing.T) {
	src := &fakeSource{}
	f := NewFilter(src, evenPredicate)
	rec := &recordingConsumer{}
	f.Subscribe(rec)

	err := f.Push(change.NewEdit(activeRow("1", false), activeRow("1", false)))
	require.NoError(t, err)
	require.Empty(t, rec.pushed)
}
