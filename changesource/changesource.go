// Package changesource implements C8: the abstract boundary between the
// core engine and whatever produces a versioned stream of row-level
// changes (a logical-decoding adapter in production, a deterministic
// test adapter in tests).
package changesource

import (
	"context"

	"github.com/google/uuid"

	"github.com/zerosync/ivmengine/change"
	"github.com/zerosync/ivmengine/internal/ivmerr"
)

// Version totally orders transactions as opaque, producer-assigned
// strings; the core never parses or compares them except for equality
// and the total order the producer guarantees.
type Version string

// Transaction is one committed batch of changes at a single version.
type Transaction struct {
	Version Version
	Table   string
	Changes []change.Change
}

// NewVersion mints an opaque version for adapters that have no natural
// version of their own (e.g. a test adapter numbering transactions only
// by arrival order still needs a stable, comparable identity).
func NewVersion() Version {
	return Version(uuid.NewString())
}

// Source is the contract a change producer offers the engine.
type Source interface {
	// Subscribe begins streaming transactions with version > fromVersion
	// (or from the beginning, if fromVersion is empty) onto ch until ctx
	// is cancelled or the source is exhausted.
	Subscribe(ctx context.Context, fromVersion Version, ch chan<- Transaction) error
	// Ack reports the highest version the consumer has durably applied,
	// letting the producer free upstream log space.
	Ack(version Version) error
	// GotCallback reports whether the source has caught up to version:
	// every change up to and including it has been delivered.
	GotCallback(version Version) bool
	// Reset signals that the producer can no longer continue
	// incrementally from any previously-acked version; the consumer
	// must resync by rebuilding its local store from a fresh snapshot.
	Reset() <-chan struct{}
}

// ResyncFunc rebuilds a consumer's local store from a fresh snapshot
// after a Reset signal; Watch's caller supplies it.
type ResyncFunc func(ctx context.Context) error

// Watch runs until ctx is cancelled, invoking onTransaction for every
// transaction the source emits and onResync whenever the source signals
// it can no longer continue incrementally. It is a change-source pump
// (the engine package does not call it), grounded on a single-goroutine select loop rather
// than a worker pool, matching the single-threaded cooperative
// discipline of spec.md §5.
func Watch(ctx context.Context, src Source, fromVersion Version, onTransaction func(Transaction) error, onResync ResyncFunc) error {
	ch := make(chan Transaction)
	errCh := make(chan error, 1)
	go func() {
		errCh <- src.Subscribe(ctx, fromVersion, ch)
	}()

	resetCh := src.Reset()

	for {
		select {
		case <-ctx.Done():
			return ivmerr.Cancellation.Wrap(ctx.Err())

		case tx, ok := <-ch:
			if !ok {
				return <-errCh
			}
			if err := onTransaction(tx); err != nil {
				return err
			}
			if err := src.Ack(tx.Version); err != nil {
				return ivmerr.ChangeSource.Wrap(err)
			}

		case <-resetCh:
			if onResync == nil {
				return ivmerr.ChangeSource.New("reset signalled with no resync handler registered")
			}
			if err := onResync(ctx); err != nil {
				return ivmerr.ChangeSource.Wrap(err)
			}

		case err := <-errCh:
			if err != nil {
				return ivmerr.ChangeSource.Wrap(err)
			}
			return nil
		}
	}
}
