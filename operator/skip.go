package operator

import (
	"github.com/zerosync/ivmengine/ast"
	"github.com/zerosync/ivmengine/row"
)

// Skip drops rows preceding start in the active ordering. Its pass
// predicate is a pure function of the row's sort key, so it is
// implemented directly as a Filter: whether a row precedes start never
// depends on what has been seen before, only on the row's own key.
func NewSkip(upstream Operator, start ast.Start, orderBy []ast.OrderTerm, pkCols []string) *Filter {
	desc := make([]bool, 0, len(orderBy)+len(pkCols))
	for _, t := range orderBy {
		desc = append(desc, t.Desc)
	}
	for range pkCols {
		desc = append(desc, false)
	}
	cols := make([]string, 0, len(orderBy)+len(pkCols))
	for _, t := range orderBy {
		cols = append(cols, t.Column)
	}
	cols = append(cols, pkCols...)

	return NewFilter(upstream, func(r row.Row) (bool, error) {
		key := make([]row.Value, len(cols))
		for i, c := range cols {
			key[i], _ = r.Get(c)
		}
		return start.Satisfies(key, desc), nil
	})
}
