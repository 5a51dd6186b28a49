// Package view implements C4: a view owns one operator graph's lifetime,
// folds its change stream into a materialized, ordered snapshot, and
// notifies listeners on each OnCommit call and on the unknown->complete
// result-type transition.
package view

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/operator"
	"github.com/zerosync/ivmengine/row"
)

// ResultType reports how complete a view's snapshot is. It only ever
// moves forward: Unknown -> Complete, never back (spec.md §4.3).
type ResultType uint8

const (
	Unknown ResultType = iota
	Complete
)

func (t ResultType) String() string {
	if t == Complete {
		return "complete"
	}
	return "unknown"
}

// Listener receives a view's snapshot and result-type, once synchronously
// upon registration, then on every OnCommit call, then once more on the
// Unknown->Complete transition.
type Listener func(snapshot []row.Row, resultType ResultType)

// Catchable is satisfied by an upstream leaf that can report whether its
// external change source has caught up to the view's baseline version;
// operator.TableSource implements it via the subscription it wraps.
type Catchable interface {
	GotCallback() bool
}

// Unsubscriber detaches a held subscription; View.Destroy calls it on
// every leaf it owns so tearing down a view never leaks a source
// subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// View materializes one operator graph's output as an ordered row slice
// plus a per-parent-key map of nested child rows, analogous to the
// teacher's Controller[T]: a single owned value, lazily built, reactive
// to upstream pushes, torn down exactly once.
type View struct {
	mu sync.Mutex

	id     string
	log    *zap.Logger
	root   operator.Operator
	pkCols []string
	leaves []Catchable
	subs   []Unsubscriber

	ordered []row.Row
	index   map[string]int
	nested  map[string]map[string][]row.Row // pk -> relationship -> children

	resultType ResultType
	listeners  []Listener

	destroyed bool
}

// New constructs a View over an already-wired operator graph. Callers
// (the engine, during materialize/preload/run) are responsible for
// building the graph and collecting its TableSource leaves.
func New(root operator.Operator, pkCols []string, leaves []Catchable, subs []Unsubscriber, log *zap.Logger) *View {
	if log == nil {
		log = zap.NewNop()
	}
	v := &View{
		id:     uuid.NewString(),
		log:    log,
		root:   root,
		pkCols: pkCols,
		leaves: leaves,
		subs:   subs,
		index:  make(map[string]int),
		nested: make(map[string]map[string][]row.Row),
	}
	root.Subscribe(v)
	return v
}

func (v *View) ID() string { return v.id }

// Hydrate runs synchronous hydration: it pulls the root operator's
// current output and checks whether the view has leaves and every one
// has already caught up, in which case ResultType starts at Complete
// instead of Unknown. A view with no leaves starts Unknown and becomes
// Complete on the next MarkCaughtUp.
func (v *View) Hydrate() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.ordered = v.root.Pull()
	v.index = make(map[string]int, len(v.ordered))
	for i, r := range v.ordered {
		v.index[r.PrimaryKey(v.pkCols).String()] = i
	}
	if len(v.leaves) > 0 && v.allCaughtUp() {
		v.resultType = Complete
	}
}

func (v *View) allCaughtUp() bool {
	for _, l := range v.leaves {
		if !l.GotCallback() {
			return false
		}
	}
	return true
}

// MarkCaughtUp re-evaluates the result-type transition after a leaf
// reports it has caught up (spec.md §4.3, §4.6). Nothing else in this
// module calls it: the scheduler does not observe leaves' catch-up.
func (v *View) MarkCaughtUp() {
	v.mu.Lock()
	if v.resultType == Complete || !v.allCaughtUp() {
		v.mu.Unlock()
		return
	}
	v.resultType = Complete
	v.mu.Unlock()
	v.notify()
}

// Push folds one upstream change into the snapshot. It does not notify
// listeners by itself: notification happens once per committed
// transaction via Commit, so that a transaction touching many rows
// produces one listener call, not one per row.
func (v *View) Push(c change.Change) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.apply(c)
}

func (v *View) apply(c change.Change) error {
	switch c.Kind {
	case change.Add:
		key := c.Row.PrimaryKey(v.pkCols).String()
		v.index[key] = len(v.ordered)
		v.ordered = append(v.ordered, v.withChildren(key, c.Row))
		return nil

	case change.Remove:
		key := c.Row.PrimaryKey(v.pkCols).String()
		idx, ok := v.index[key]
		if !ok {
			return nil
		}
		v.ordered = append(v.ordered[:idx], v.ordered[idx+1:]...)
		delete(v.index, key)
		delete(v.nested, key)
		for k, i := range v.index {
			if i > idx {
				v.index[k] = i - 1
			}
		}
		return nil

	case change.Edit:
		key := c.NewRow.PrimaryKey(v.pkCols).String()
		idx, ok := v.index[key]
		if !ok {
			return nil
		}
		v.ordered[idx] = v.withChildren(key, c.NewRow)
		return nil

	case change.Child:
		return v.applyChild(c)

	default:
		return nil
	}
}

func (v *View) applyChild(c change.Change) error {
	parentKey := c.ParentRow.PrimaryKey(v.pkCols).String()
	bucket, ok := v.nested[parentKey]
	if !ok {
		bucket = make(map[string][]row.Row)
		v.nested[parentKey] = bucket
	}
	children := bucket[c.RelationshipName]

	switch c.ChildChange.Kind {
	case change.Add:
		children = append(children, c.ChildChange.Row)
	case change.Remove:
		children = removeRow(children, c.ChildChange.Row)
	case change.Edit:
		children = removeRow(children, c.ChildChange.OldRow)
		children = append(children, c.ChildChange.NewRow)
	}
	bucket[c.RelationshipName] = children

	if idx, ok := v.index[parentKey]; ok {
		v.ordered[idx] = v.withChildren(parentKey, stripChildren(v.ordered[idx]))
	}
	return nil
}

func removeRow(rows []row.Row, target row.Row) []row.Row {
	out := rows[:0]
	removed := false
	for _, r := range rows {
		if !removed && rowsIdentical(r, target) {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out
}

func rowsIdentical(a, b row.Row) bool {
	ac := a.Columns()
	for _, c := range ac {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if row.Compare(av, bv) != 0 {
			return false
		}
	}
	return true
}

// withChildren attaches the currently-known nested children as JSON
// values under their relationship name, leaving the base row untouched
// when it has no attached children.
func (v *View) withChildren(pkStr string, r row.Row) row.Row {
	bucket, ok := v.nested[pkStr]
	if !ok {
		return r
	}
	out := r
	for rel, children := range bucket {
		out = out.With(rel, row.JSON(children))
	}
	return out
}

// stripChildren is a no-op placeholder kept symmetric with withChildren
// for readability; the base row stored in v.ordered never itself holds
// the nested relationship key, only what withChildren re-attaches on
// read, so there is nothing to remove before re-attaching.
func stripChildren(r row.Row) row.Row { return r }

// OnCommit notifies every registered listener with the current snapshot
// and result type, whether or not the snapshot changed since the last
// notification. It satisfies source.CommitListener, but a View is not
// itself connected to any Source (its TableSource leaves are, and they
// do not forward commits), so Source.Commit does not reach it; the
// view's owner calls OnCommit.
func (v *View) OnCommit() {
	v.notify()
}

func (v *View) notify() {
	v.mu.Lock()
	snapshot := append([]row.Row(nil), v.ordered...)
	resultType := v.resultType
	listeners := append([]Listener(nil), v.listeners...)
	v.mu.Unlock()

	for _, l := range listeners {
		l(snapshot, resultType)
	}
}

// Subscribe registers a listener, calling it once synchronously with the
// current snapshot before returning (spec.md §4.3).
func (v *View) Subscribe(l Listener) {
	v.mu.Lock()
	v.listeners = append(v.listeners, l)
	snapshot := append([]row.Row(nil), v.ordered...)
	resultType := v.resultType
	v.mu.Unlock()

	l(snapshot, resultType)
}

// Snapshot returns the view's current ordered rows without registering a
// listener.
func (v *View) Snapshot() []row.Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]row.Row(nil), v.ordered...)
}

func (v *View) ResultType() ResultType {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resultType
}

// Destroy tears down every source subscription this view holds. It is
// idempotent: a second call is a no-op.
func (v *View) Destroy() error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return nil
	}
	v.destroyed = true
	subs := v.subs
	v.mu.Unlock()

	var err error
	for _, s := range subs {
		err = multierr.Append(err, s.Unsubscribe())
	}
	return err
}
