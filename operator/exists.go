package operator

import (
	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
)

// Exists filters its parent stream by whether a correlated subquery is
// non-empty (empty, if Negated). Flip records a cost-only hint from the
// planner; it does not change Exists's semantics, only which side a
// caller chose to drive the correlation from (both sides still push
// through pushParent/pushChild here since the semantics are identical).
type Exists struct {
	base
	parent      Operator
	child       Operator
	correlation ast.Correlation
	flip        bool
	negated     bool

	parentRows map[string]row.Row
	childCount map[string]int
	emittedRow map[string]row.Row
}

func NewExists(parent, child Operator, correlation ast.Correlation, flip, negated bool) *Exists {
	e := &Exists{
		parent:      parent,
		child:       child,
		correlation: correlation,
		flip:        flip,
		negated:     negated,
		parentRows:  make(map[string]row.Row),
		childCount:  make(map[string]int),
		emittedRow:  make(map[string]row.Row),
	}
	parent.Subscribe(parentAdapter{e})
	child.Subscribe(childAdapter{e})
	return e
}

// Flip reports the planner's driving-side hint; exposed for planning
// diagnostics and tests, not consulted by the operator's own logic.
func (e *Exists) Flip() bool { return e.flip }

type parentAdapter struct{ e *Exists }

func (a parentAdapter) Push(c change.Change) error { return a.e.pushParent(c) }

type childAdapter struct{ e *Exists }

func (a childAdapter) Push(c change.Change) error { return a.e.pushChild(c) }

func (e *Exists) keyOfParentRow(r row.Row) string {
	vals := make([]row.Value, len(e.correlation.ParentFields))
	for i, f := range e.correlation.ParentFields {
		vals[i], _ = r.Get(f)
	}
	return row.KeyFromValues(vals).String()
}

func (e *Exists) keyOfChildRow(r row.Row) string {
	vals := make([]row.Value, len(e.correlation.ChildFields))
	for i, f := range e.correlation.ChildFields {
		vals[i], _ = r.Get(f)
	}
	return row.KeyFromValues(vals).String()
}

func (e *Exists) passes(count int) bool {
	if e.negated {
		return count == 0
	}
	return count > 0
}

func (e *Exists) recompute(key string) error {
	want := e.passes(e.childCount[key])
	_, was := e.emittedRow[key]
	switch {
	case want && !was:
		r, ok := e.parentRows[key]
		if !ok {
			return nil
		}
		e.emittedRow[key] = r
		return e.emit(change.NewAdd(r))
	case !want && was:
		r := e.emittedRow[key]
		delete(e.emittedRow, key)
		return e.emit(change.NewRemove(r))
	}
	return nil
}

func (e *Exists) pushParent(c change.Change) error {
	switch c.Kind {
	case change.Add:
		key := e.keyOfParentRow(c.Row)
		e.parentRows[key] = c.Row
		return e.recompute(key)

	case change.Remove:
		key := e.keyOfParentRow(c.Row)
		delete(e.parentRows, key)
		_, was := e.emittedRow[key]
		if was {
			delete(e.emittedRow, key)
			return e.emit(change.NewRemove(c.Row))
		}
		return nil

	case change.Edit:
		oldKey := e.keyOfParentRow(c.OldRow)
		newKey := e.keyOfParentRow(c.NewRow)
		if oldKey == newKey {
			e.parentRows[newKey] = c.NewRow
			if _, was := e.emittedRow[newKey]; was {
				e.emittedRow[newKey] = c.NewRow
				return e.emit(change.NewEdit(c.OldRow, c.NewRow))
			}
			return nil
		}
		if err := e.pushParent(change.NewRemove(c.OldRow)); err != nil {
			return err
		}
		return e.pushParent(change.NewAdd(c.NewRow))

	case change.Child:
		key := e.keyOfParentRow(c.ParentRow)
		if _, ok := e.emittedRow[key]; ok {
			return e.emit(c)
		}
		return nil

	default:
		return ivmerr.NewInvariant("exists.pushParent", ivmerr.Validation.New("unsupported change kind %s", c.Kind))
	}
}

func (e *Exists) pushChild(c change.Change) error {
	switch c.Kind {
	case change.Add:
		key := e.keyOfChildRow(c.Row)
		e.childCount[key]++
		return e.recompute(key)

	case change.Remove:
		key := e.keyOfChildRow(c.Row)
		e.childCount[key]--
		if e.childCount[key] < 0 {
			return ivmerr.NewInvariant("exists.pushChild", ivmerr.Validation.New("child count went negative for key %s", key))
		}
		return e.recompute(key)

	case change.Edit:
		oldKey := e.keyOfChildRow(c.OldRow)
		newKey := e.keyOfChildRow(c.NewRow)
		if oldKey == newKey {
			return nil
		}
		e.childCount[oldKey]--
		e.childCount[newKey]++
		if err := e.recompute(oldKey); err != nil {
			return err
		}
		return e.recompute(newKey)

	default:
		return nil
	}
}

// Push satisfies Operator/Consumer for symmetry; Exists's real input
// paths are the dedicated parentAdapter/childAdapter registered at
// construction time, not a direct call to Push.
func (e *Exists) Push(c change.Change) error {
	return ivmerr.NewInvariant("exists.Push", ivmerr.Validation.New("Exists must be driven through its parent/child subscriptions"))
}

// Pull builds Exists's internal state from the parent and child
// operators' current snapshots and returns the initial pass-through
// parent rows. It is called once, depth-first, during hydration.
func (e *Exists) Pull() []row.Row {
	for _, r := range e.child.Pull() {
		e.childCount[e.keyOfChildRow(r)]++
	}
	var out []row.Row
	for _, r := range e.parent.Pull() {
		key := e.keyOfParentRow(r)
		e.parentRows[key] = r
		if e.passes(e.childCount[key]) {
			e.emittedRow[key] = r
			out = append(out, r)
		}
	}
	return out
}
