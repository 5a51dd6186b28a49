package operator

import (
	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/source"
)

// TableSource emits rows from a source.Subscription in its pinned
// ordering. It is the only operator kind that touches C2 directly, and
// the only kind the view package's result-type tracking inspects for
// catch-up status.
type TableSource struct {
	base
	sub      *source.Subscription
	caughtUp bool
}

// NewTableSource wires a TableSource to an already-established
// subscription; the subscription's ordering was chosen by the planner.
func NewTableSource(sub *source.Subscription) *TableSource {
	return &TableSource{sub: sub}
}

// Connect builds a TableSource by establishing its own subscription on
// src, so callers (the engine's graph builder) don't need the two-step
// "subscribe, then wrap" dance: a TableSource is itself a
// source.Listener, so it can be its own Connect argument.
func Connect(src *source.Source, terms []ast.OrderTerm, filter source.FilterHint) *TableSource {
	t := &TableSource{}
	t.sub = src.Connect(terms, t, filter)
	return t
}

// GotCallback reports whether this source's upstream change feed has
// caught up to the baseline version the owning view hydrated against
// (spec.md §4.3). It changes only through SetCaughtUp, which no other
// package of this module calls.
func (t *TableSource) GotCallback() bool { return t.caughtUp }

func (t *TableSource) SetCaughtUp(v bool) { t.caughtUp = v }

// Unsubscribe releases the underlying source subscription, satisfying
// view.Unsubscriber so the engine can hand TableSource leaves straight
// to View's teardown list.
func (t *TableSource) Unsubscribe() error { return t.sub.Unsubscribe() }

// OnSourceChange implements source.Listener: every change observed on
// the pinned ordering is forwarded downstream unchanged.
func (t *TableSource) OnSourceChange(c change.Change) error {
	return t.emit(c)
}

// Push exists to satisfy Operator/Consumer; a TableSource has no
// upstream operator, only the source.Subscription feeding it through
// OnSourceChange, so Push is never called by the graph itself.
func (t *TableSource) Push(c change.Change) error {
	return t.emit(c)
}

func (t *TableSource) Pull() []row.Row {
	return t.sub.Snapshot()
}
