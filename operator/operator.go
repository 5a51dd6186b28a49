// Package operator implements C3: the stateful dataflow nodes that
// propagate row changes from table sources through filters, joins,
// existence checks, pagination, and fan-out/fan-in, down to a
// materialized snapshot.
package operator

import (
	"go.uber.org/multierr"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/row"
)

// Consumer accepts pushed changes. Every Operator is a Consumer of its
// upstream(s); a View is a Consumer of its root operator.
type Consumer interface {
	Push(change.Change) error
}

// Operator is a stateful dataflow node: a deterministic ordering over
// its output, a push method that maps one input Change to zero or more
// output Changes delivered to its downstream consumers, and an
// optional pull used only during hydration.
type Operator interface {
	Consumer
	// Pull returns (and, for stateful operators, builds) the operator's
	// current full ordered output. It is only called during hydration,
	// depth-first, leaves first.
	Pull() []row.Row
	// Subscribe registers a downstream consumer; an operator may have
	// more than one (see FanOut).
	Subscribe(Consumer)
}

// base provides the shared downstream fan-out bookkeeping every
// concrete operator embeds, mirroring the teacher's composition-over-
// inheritance style (BaseExtension in extension.go).
type base struct {
	downstream []Consumer
}

func (b *base) Subscribe(c Consumer) {
	b.downstream = append(b.downstream, c)
}

func (b *base) emit(c change.Change) error {
	var err error
	for _, d := range b.downstream {
		err = multierr.Append(err, d.Push(c))
	}
	return err
}
