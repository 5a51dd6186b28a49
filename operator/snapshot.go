package operator

import (
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

// Snapshot is a transparent terminal operator marking where a view attaches
// to the operator graph. It performs no transformation; its only job is
// to give the view package a single, stable subscription point whose
// identity does not change if the upstream graph is rebuilt by the
// planner.
type Snapshot struct {
	base
	upstream Operator
}

func NewSnapshot(upstream Operator) *Snapshot {
	s := &Snapshot{upstream: upstream}
	upstream.Subscribe(s)
	return s
}

func (s *Snapshot) Push(c change.Change) error {
	return s.emit(c)
}

func (s *Snapshot) Pull() []row.Row {
	return s.upstream.Pull()
}
