package operator

import (
	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

// FanOut duplicates a change stream for sharing subtrees, used to let
// multiple disjunction branches read the same upstream operator without
// re-evaluating it.
type FanOut struct {
	base
	upstream Operator
}

func NewFanOut(upstream Operator) *FanOut {
	f := &FanOut{upstream: upstream}
	upstream.Subscribe(f)
	return f
}

func (f *FanOut) Push(c change.Change) error {
	return f.emit(c)
}

func (f *FanOut) Pull() []row.Row {
	return f.upstream.Pull()
}
