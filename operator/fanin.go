package operator

import (
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
)

// FanIn merges streams from multiple FanOut branches. It is
// distinct-by-key: an Add observed via two branches produces exactly
// one output Add, tracked by a per-key reference count, so removal
// from one branch does not retract a row still justified by another
// (spec.md §4.2, §8.6).
type FanIn struct {
	base
	pkCols   []string
	branches int

	refCount  map[string]int
	current   map[string]row.Row
	branchOps []Operator
}

// NewFanIn creates a FanIn with the given number of upstream branches.
// Callers obtain a Consumer per branch via Branch() and Subscribe each
// producing operator to the returned consumer, or use AddBranch to do
// both at once and let FanIn drive its own Pull-time hydration.
func NewFanIn(pkCols []string, branches int) *FanIn {
	return &FanIn{
		pkCols:   pkCols,
		branches: branches,
		refCount: make(map[string]int),
		current:  make(map[string]row.Row),
	}
}

// branchConsumer adapts FanIn.pushFromBranch to the Consumer interface
// so each upstream branch can Subscribe independently.
type branchConsumer struct {
	fanIn *FanIn
}

func (f *FanIn) Branch() Consumer {
	return branchConsumer{fanIn: f}
}

// AddBranch subscribes op as a producing branch and records it so
// Pull can hydrate this FanIn's state from every branch's own Pull
// output, depth-first.
func (f *FanIn) AddBranch(op Operator) {
	f.branchOps = append(f.branchOps, op)
	op.Subscribe(f.Branch())
}

func (b branchConsumer) Push(c change.Change) error {
	return b.fanIn.pushFromBranch(c)
}

func (f *FanIn) pushFromBranch(c change.Change) error {
	switch c.Kind {
	case change.Add:
		key := c.Row.PrimaryKey(f.pkCols).String()
		f.refCount[key]++
		f.current[key] = c.Row
		if f.refCount[key] == 1 {
			return f.emit(c)
		}
		return nil

	case change.Remove:
		key := c.Row.PrimaryKey(f.pkCols).String()
		f.refCount[key]--
		if f.refCount[key] < 0 {
			return ivmerr.NewInvariant("fanin.remove", ivmerr.Validation.New("reference count went negative for key %s", key))
		}
		if f.refCount[key] == 0 {
			delete(f.refCount, key)
			row := f.current[key]
			delete(f.current, key)
			return f.emit(change.NewRemove(row))
		}
		return nil

	case change.Edit:
		key := c.NewRow.PrimaryKey(f.pkCols).String()
		old := f.current[key]
		f.current[key] = c.NewRow
		if f.refCount[key] >= 1 {
			return f.emit(change.NewEdit(old, c.NewRow))
		}
		return nil

	case change.Child:
		key := c.ParentRow.PrimaryKey(f.pkCols).String()
		if f.refCount[key] >= 1 {
			return f.emit(c)
		}
		return nil

	default:
		return ivmerr.NewInvariant("fanin.push", ivmerr.Validation.New("unsupported change kind %s", c.Kind))
	}
}

// Push satisfies Operator/Consumer for symmetry; FanIn's real input
// path is per-branch via Branch().
func (f *FanIn) Push(c change.Change) error {
	return f.pushFromBranch(c)
}

// RefCount exposes a key's current reference count, for the testable
// property in spec.md §8.6 (never negative).
func (f *FanIn) RefCount(pkStr string) int {
	return f.refCount[pkStr]
}

// Pull hydrates FanIn from every branch registered via AddBranch, in
// registration order, and returns the deduplicated result. FanIn
// constructed only through Branch() (as in tests driving it directly
// with pushed changes) has no branchOps to pull from and simply
// reports its current state.
func (f *FanIn) Pull() []row.Row {
	if len(f.branchOps) == 0 {
		out := make([]row.Row, 0, len(f.current))
		for _, r := range f.current {
			out = append(out, r)
		}
		return out
	}
	branches := make([][]row.Row, len(f.branchOps))
	for i, op := range f.branchOps {
		branches[i] = op.Pull()
	}
	return f.HydrateFromBranches(branches)
}

// HydrateFromBranches seeds FanIn's state from each branch's hydrated
// Pull() output, preserving the first branch's row ordering for rows
// shared across branches and appending branch-only rows after.
func (f *FanIn) HydrateFromBranches(branches [][]row.Row) []row.Row {
	var ordered []row.Row
	seen := map[string]bool{}
	for _, branch := range branches {
		for _, r := range branch {
			key := r.PrimaryKey(f.pkCols).String()
			f.refCount[key]++
			f.current[key] = r
			if !seen[key] {
				seen[key] = true
				ordered = append(ordered, r)
			}
		}
	}
	return ordered
}
