package operator

import (
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

// Predicate evaluates a row for Filter.
// An error here is a per-row EvaluationError: it must not poison other
// rows or other queries (spec.md §4.2, §7).
type Predicate func(row.Row) (bool, error)

// Filter drops changes whose row does not satisfy its predicate. Edit
// is translated into Add/Remove/Edit based on predicate evaluation on
// both the old and new row, per the resolved Open Question in
// DESIGN.md: old passes & new fails -> Remove(old); both pass -> Edit;
// neither passes -> dropped.
type Filter struct {
	base
	upstream  Operator
	predicate Predicate
}

func NewFilter(upstream Operator, predicate Predicate) *Filter {
	f := &Filter{upstream: upstream, predicate: predicate}
	upstream.Subscribe(f)
	return f
}

func (f *Filter) Push(c change.Change) error {
	switch c.Kind {
	case change.Add:
		ok, err := f.predicate(c.Row)
		if err != nil {
			return err
		}
		if ok {
			return f.emit(c)
		}
		return nil

	case change.Remove:
		ok, err := f.predicate(c.Row)
		if err != nil {
			return err
		}
		if ok {
			return f.emit(c)
		}
		return nil

	case change.Edit:
		oldOK, err := f.predicate(c.OldRow)
		if err != nil {
			return err
		}
		newOK, err := f.predicate(c.NewRow)
		if err != nil {
			return err
		}
		switch {
		case oldOK && newOK:
			return f.emit(c)
		case oldOK && !newOK:
			return f.emit(change.NewRemove(c.OldRow))
		case !oldOK && newOK:
			return f.emit(change.NewAdd(c.NewRow))
		default:
			return nil
		}

	case change.Child:
		ok, err := f.predicate(c.ParentRow)
		if err != nil {
			return err
		}
		if ok {
			return f.emit(c)
		}
		return nil
	}
	return nil
}

func (f *Filter) Pull() []row.Row {
	upstream := f.upstream.Pull()
	out := make([]row.Row, 0, len(upstream))
	for _, r := range upstream {
		if ok, err := f.predicate(r); err == nil && ok {
			out = append(out, r)
		}
	}
	return out
}
