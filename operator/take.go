package operator

import (
	"sort"

	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
)

// Take emits at most K rows from upstream in orderBy. It is forbidden
// inside a junction inner edge (enforced by the planner/engine before
// construction, not here).
//
// Implementation note: rather than the boundary-key compensation
// sketched in spec.md §4.2, Take keeps the full ordered upstream
// sequence that passes its optional start filter and recomputes the
// K-row window on every push. This trades memory for a simpler,
// obviously-correct diff: the IVM correctness property (spec.md §8.1)
// does not depend on how the window is recomputed, only that the
// emitted deltas converge on it.
type Take struct {
	base
	upstream Operator
	k        int
	cols     []string
	desc     []bool
	pkCols   []string
	start    *ast.Start

	rows       []keyedRow
	windowKeys map[string]row.Row
}

type keyedRow struct {
	key   []row.Value
	pkStr string
	row   row.Row
}

func NewTake(upstream Operator, k int, orderBy []ast.OrderTerm, pkCols []string, start *ast.Start) *Take {
	cols := make([]string, 0, len(orderBy)+len(pkCols))
	desc := make([]bool, 0, len(orderBy)+len(pkCols))
	for _, t := range orderBy {
		cols = append(cols, t.Column)
		desc = append(desc, t.Desc)
	}
	for _, c := range pkCols {
		cols = append(cols, c)
		desc = append(desc, false)
	}
	t := &Take{
		upstream:   upstream,
		k:          k,
		cols:       cols,
		desc:       desc,
		pkCols:     pkCols,
		start:      start,
		windowKeys: make(map[string]row.Row),
	}
	upstream.Subscribe(t)
	return t
}

// Pull hydrates Take's internal ordered buffer from upstream and
// returns the current K-row window.
func (t *Take) Pull() []row.Row {
	upstreamRows := t.upstream.Pull()
	t.rows = t.rows[:0]
	for _, r := range upstreamRows {
		kr := t.keyOf(r, t.pkCols)
		if t.passesStart(kr) {
			t.rows = append(t.rows, kr)
		}
	}
	limit := t.k
	if limit > len(t.rows) {
		limit = len(t.rows)
	}
	out := make([]row.Row, limit)
	t.windowKeys = make(map[string]row.Row, limit)
	for i, kr := range t.rows[:limit] {
		out[i] = kr.row
		t.windowKeys[kr.pkStr] = kr.row
	}
	return out
}

func (t *Take) keyOf(r row.Row, pkCols []string) keyedRow {
	key := make([]row.Value, len(t.cols))
	for i, c := range t.cols {
		key[i], _ = r.Get(c)
	}
	pk := r.PrimaryKey(pkCols)
	return keyedRow{key: key, pkStr: pk.String(), row: r}
}

func (t *Take) passesStart(kr keyedRow) bool {
	if t.start == nil {
		return true
	}
	return t.start.Satisfies(kr.key, t.desc)
}

func (t *Take) indexOf(pkStr string) int {
	for i, kr := range t.rows {
		if kr.pkStr == pkStr {
			return i
		}
	}
	return -1
}

func (t *Take) insert(kr keyedRow) {
	idx := sort.Search(len(t.rows), func(i int) bool {
		return row.CompareKeys(t.rows[i].key, kr.key, t.desc) >= 0
	})
	t.rows = append(t.rows, keyedRow{})
	copy(t.rows[idx+1:], t.rows[idx:])
	t.rows[idx] = kr
}

func (t *Take) removeByPK(pkStr string) {
	idx := t.indexOf(pkStr)
	if idx < 0 {
		return
	}
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
}

// recompute diffs the current window against the new top-K slice of
// t.rows and emits the resulting Add/Remove/Edit changes.
func (t *Take) recompute() error {
	limit := t.k
	if limit > len(t.rows) {
		limit = len(t.rows)
	}
	newWindow := make(map[string]row.Row, limit)
	for _, kr := range t.rows[:limit] {
		newWindow[kr.pkStr] = kr.row
	}

	var err error
	for pkStr, oldRow := range t.windowKeys {
		if _, stillIn := newWindow[pkStr]; !stillIn {
			if e := t.emit(change.NewRemove(oldRow)); e != nil {
				err = e
			}
		}
	}
	for pkStr, newRow := range newWindow {
		oldRow, wasIn := t.windowKeys[pkStr]
		if !wasIn {
			if e := t.emit(change.NewAdd(newRow)); e != nil {
				err = e
			}
		} else if !rowsEqual(oldRow, newRow) {
			if e := t.emit(change.NewEdit(oldRow, newRow)); e != nil {
				err = e
			}
		}
	}
	t.windowKeys = newWindow
	return err
}

func rowsEqual(a, b row.Row) bool {
	ac, bc := a.Columns(), b.Columns()
	if len(ac) != len(bc) {
		return false
	}
	for _, c := range ac {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if row.Compare(av, bv) != 0 {
			return false
		}
	}
	return true
}

func (t *Take) Push(c change.Change) error {
	switch c.Kind {
	case change.Add:
		kr := t.keyOf(c.Row, t.pkCols)
		if t.passesStart(kr) {
			t.insert(kr)
		}
		return t.recompute()
	case change.Remove:
		kr := t.keyOf(c.Row, t.pkCols)
		t.removeByPK(kr.pkStr)
		return t.recompute()
	case change.Edit:
		oldKR := t.keyOf(c.OldRow, t.pkCols)
		t.removeByPK(oldKR.pkStr)
		newKR := t.keyOf(c.NewRow, t.pkCols)
		if t.passesStart(newKR) {
			t.insert(newKR)
		}
		return t.recompute()
	case change.Child:
		if _, inWindow := t.windowKeys[c.ParentRow.PrimaryKey(t.pkCols).String()]; inWindow {
			return t.emit(c)
		}
		return nil
	default:
		return ivmerr.NewInvariant("take.Push", ivmerr.Validation.New("unsupported change kind %s", c.Kind))
	}
}
