package planner

// Oracle exposes index and cardinality statistics the planner needs to
// cost candidate plans. Implementations may source these from live
// catalog statistics or a fixed test fixture; per spec.md §7, an
// unavailable statistic degrades the estimate rather than erroring.
type Oracle interface {
	// RowCount estimates the number of rows currently in table.
	RowCount(table string) int64
	// DistinctCount estimates the number of distinct values of the
	// column prefix cols within table.
	DistinctCount(table string, cols []string) int64
	// HasIndex reports whether cols (in order) is covered by an index on
	// table, letting an ordered scan or equality lookup avoid a full
	// scan.
	HasIndex(table string, cols []string) bool
}

// StaticOracle is an in-memory Oracle backed by fixed per-table
// statistics, used by tests and by cmd/ivmdebug's fixture loader.
type StaticOracle struct {
	RowCounts map[string]int64
	Indexes   map[string][][]string
	Distincts map[string]map[string]int64
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		RowCounts: make(map[string]int64),
		Indexes:   make(map[string][][]string),
		Distincts: make(map[string]map[string]int64),
	}
}

func (o *StaticOracle) RowCount(table string) int64 {
	return o.RowCounts[table]
}

func (o *StaticOracle) DistinctCount(table string, cols []string) int64 {
	key := colKey(cols)
	if byCols, ok := o.Distincts[table]; ok {
		if v, ok := byCols[key]; ok {
			return v
		}
	}
	// Degrade to the table's row count: worst-case assumption that every
	// row is distinct on the requested prefix (spec.md §7 Planner class:
	// unavailable statistics degrade the estimate, never fail the query).
	return o.RowCounts[table]
}

func (o *StaticOracle) HasIndex(table string, cols []string) bool {
	for _, idx := range o.Indexes[table] {
		if isPrefixOf(cols, idx) {
			return true
		}
	}
	return false
}

func isPrefixOf(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, c := range prefix {
		if full[i] != c {
			return false
		}
	}
	return true
}

func colKey(cols []string) string {
	s := ""
	for i, c := range cols {
		if i > 0 {
			s += ","
		}
		s += c
	}
	return s
}
