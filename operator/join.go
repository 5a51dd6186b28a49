package operator

import (
	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
)

// Join attaches a child relationship's rows to each parent row, wrapping
// every child delta in a change.Child envelope addressed by the parent's
// key and the relationship name (spec.md §3 Related, §4.2). Unlike a SQL
// join, Join never flattens rows: the parent stream passes through
// unchanged and children surface only as Child changes for the view
// layer to assemble into a nested tree.
type Join struct {
	base
	parent           Operator
	child            Operator
	relationshipName string
	correlation      ast.Correlation
	childPKCols      []string // primary key columns of the CHILD table, not the parent's

	parentRows map[string]row.Row            // correlation key -> parent row
	children   map[string]map[string]row.Row // correlation key -> child pk -> child row
}

func NewJoin(parent, child Operator, relationshipName string, correlation ast.Correlation, childPKCols []string) *Join {
	j := &Join{
		parent:           parent,
		child:            child,
		relationshipName: relationshipName,
		correlation:      correlation,
		childPKCols:      childPKCols,
		parentRows:       make(map[string]row.Row),
		children:         make(map[string]map[string]row.Row),
	}
	parent.Subscribe(parentJoinAdapter{j})
	child.Subscribe(childJoinAdapter{j})
	return j
}

type parentJoinAdapter struct{ j *Join }

func (a parentJoinAdapter) Push(c change.Change) error { return a.j.pushParent(c) }

type childJoinAdapter struct{ j *Join }

func (a childJoinAdapter) Push(c change.Change) error { return a.j.pushChild(c) }

func (j *Join) parentKeyOf(r row.Row) string {
	vals := make([]row.Value, len(j.correlation.ParentFields))
	for i, f := range j.correlation.ParentFields {
		vals[i], _ = r.Get(f)
	}
	return row.KeyFromValues(vals).String()
}

func (j *Join) childKeyOf(r row.Row) string {
	vals := make([]row.Value, len(j.correlation.ChildFields))
	for i, f := range j.correlation.ChildFields {
		vals[i], _ = r.Get(f)
	}
	return row.KeyFromValues(vals).String()
}

// pushParent forwards parent changes unchanged and keeps parentRows
// current: Join's Child envelopes need the real parent row, not just
// its correlation key.
func (j *Join) pushParent(c change.Change) error {
	switch c.Kind {
	case change.Add:
		j.parentRows[j.parentKeyOf(c.Row)] = c.Row
		return j.emit(c)

	case change.Remove:
		delete(j.parentRows, j.parentKeyOf(c.Row))
		return j.emit(c)

	case change.Edit:
		oldKey := j.parentKeyOf(c.OldRow)
		newKey := j.parentKeyOf(c.NewRow)
		if oldKey != newKey {
			delete(j.parentRows, oldKey)
		}
		j.parentRows[newKey] = c.NewRow
		return j.emit(c)

	case change.Child:
		return j.emit(c)

	default:
		return ivmerr.NewInvariant("join.pushParent", ivmerr.Validation.New("unsupported change kind %s", c.Kind))
	}
}

// emitChild wraps inner in a Child envelope addressed at the parent row
// the correlation key maps to. A child arriving before its parent has
// been seen has nowhere to attach yet, so it is dropped rather than
// emitted with a placeholder.
func (j *Join) emitChild(parentKey string, inner change.Change) error {
	parentRow, ok := j.parentRows[parentKey]
	if !ok {
		return nil
	}
	return j.emit(change.NewChild(parentRow, j.relationshipName, inner))
}

func (j *Join) pushChild(c change.Change) error {
	switch c.Kind {
	case change.Add:
		key := j.childKeyOf(c.Row)
		bucket := j.children[key]
		if bucket == nil {
			bucket = make(map[string]row.Row)
			j.children[key] = bucket
		}
		bucket[c.Row.PrimaryKey(j.childPKCols).String()] = c.Row
		return j.emitChild(key, change.NewAdd(c.Row))

	case change.Remove:
		key := j.childKeyOf(c.Row)
		pk := c.Row.PrimaryKey(j.childPKCols).String()
		if bucket, ok := j.children[key]; ok {
			delete(bucket, pk)
			if len(bucket) == 0 {
				delete(j.children, key)
			}
		}
		return j.emitChild(key, change.NewRemove(c.Row))

	case change.Edit:
		oldKey := j.childKeyOf(c.OldRow)
		newKey := j.childKeyOf(c.NewRow)
		pk := c.NewRow.PrimaryKey(j.childPKCols).String()
		if oldKey != newKey {
			if bucket, ok := j.children[oldKey]; ok {
				delete(bucket, pk)
				if len(bucket) == 0 {
					delete(j.children, oldKey)
				}
			}
			bucket := j.children[newKey]
			if bucket == nil {
				bucket = make(map[string]row.Row)
				j.children[newKey] = bucket
			}
			bucket[pk] = c.NewRow
			if err := j.emitChild(oldKey, change.NewRemove(c.OldRow)); err != nil {
				return err
			}
			return j.emitChild(newKey, change.NewAdd(c.NewRow))
		}
		if bucket, ok := j.children[newKey]; ok {
			bucket[pk] = c.NewRow
		}
		return j.emitChild(newKey, change.NewEdit(c.OldRow, c.NewRow))

	default:
		return ivmerr.NewInvariant("join.pushChild", ivmerr.Validation.New("unsupported change kind %s", c.Kind))
	}
}

// Children returns the currently attached child rows for a parent row,
// used by the view layer when hydrating a nested result tree.
func (j *Join) Children(parentRow row.Row) []row.Row {
	key := j.parentKeyOf(parentRow)
	bucket := j.children[key]
	out := make([]row.Row, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r)
	}
	return out
}

// Push satisfies Operator/Consumer for symmetry; Join's real input
// paths are the dedicated parentJoinAdapter/childJoinAdapter registered
// at construction time, not a direct call to Push.
func (j *Join) Push(c change.Change) error {
	return ivmerr.NewInvariant("join.Push", ivmerr.Validation.New("Join must be driven through its parent/child subscriptions"))
}

// Pull seeds Join's child index and parent-row table from the child and
// parent operators' current snapshots, then passes the parent rows
// through unchanged. It is called once, depth-first, during hydration.
func (j *Join) Pull() []row.Row {
	for _, r := range j.child.Pull() {
		key := j.childKeyOf(r)
		bucket := j.children[key]
		if bucket == nil {
			bucket = make(map[string]row.Row)
			j.children[key] = bucket
		}
		bucket[r.PrimaryKey(j.childPKCols).String()] = r
	}

	out := j.parent.Pull()
	for _, r := range out {
		j.parentRows[j.parentKeyOf(r)] = r
	}
	return out
}
