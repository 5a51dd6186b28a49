// Package extensions holds optional, composable add-ons to the core
// engine: observability hooks that a caller may attach but the engine
// never depends on directly.
package extensions

import (
	"time"

	"go.uber.org/zap"

	"github.com/zerosync/ivmengine/row"
	"github.com/zerosync/ivmengine/view"
)

// TraceExtension logs every snapshot/result-type transition a View
// delivers to its listeners, structured through zap rather than the
// ad hoc fmt.Printf a bare logging middleware would use.
type TraceExtension struct {
	name string
	log  *zap.Logger
}

// NewTraceExtension creates a trace extension identified by name, used
// as the zap field distinguishing multiple attached views' log lines.
func NewTraceExtension(name string, log *zap.Logger) *TraceExtension {
	if log == nil {
		log = zap.NewNop()
	}
	return &TraceExtension{name: name, log: log}
}

// Listener returns a view.Listener that logs each callback this
// extension observes; pass it to View.Subscribe.
func (e *TraceExtension) Listener() view.Listener {
	start := time.Now()
	calls := 0
	return func(snapshot []row.Row, resultType view.ResultType) {
		calls++
		e.log.Info("view notified",
			zap.String("view", e.name),
			zap.Int("call", calls),
			zap.Int("rowCount", len(snapshot)),
			zap.String("resultType", resultType.String()),
			zap.Duration("sinceSubscribe", time.Since(start)),
		)
	}
}
