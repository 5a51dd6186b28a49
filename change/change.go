// Package change defines the row-level delta type that flows through
// every operator: add, remove, edit, and the recursive child variant
// used to propagate a nested subquery's changes to its parent.
package change

import "github.com/zerosync/ivmengine/row"

// Kind tags the variant carried by a Change, mirroring the teacher's
// Operation/OperationKind tagged-struct pattern.
type Kind uint8

const (
	Add Kind = iota
	Remove
	Edit
	Child
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Edit:
		return "edit"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

// Change is one row-level delta. Only the fields relevant to Kind are
// populated; callers switch on Kind before reading them.
type Change struct {
	Kind Kind

	// Add
	Row row.Row

	// Remove uses Row too (only key columns need be meaningful).

	// Edit
	OldRow row.Row
	NewRow row.Row

	// Child
	ParentRow        row.Row
	RelationshipName string
	ChildChange      *Change
}

func NewAdd(r row.Row) Change    { return Change{Kind: Add, Row: r} }
func NewRemove(r row.Row) Change { return Change{Kind: Remove, Row: r} }
func NewEdit(oldRow, newRow row.Row) Change {
	return Change{Kind: Edit, OldRow: oldRow, NewRow: newRow}
}
func NewChild(parent row.Row, relationship string, c Change) Change {
	return Change{Kind: Child, ParentRow: parent, RelationshipName: relationship, ChildChange: &c}
}
