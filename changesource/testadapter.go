package changesource

import (
	"context"
	"sync"
	"time"
)

// TestAdapter is a deterministic, in-memory Source used by engine and
// changesource tests: transactions are queued by the test and delivered
// in order, with GotCallback reporting strictly by version arrival.
type TestAdapter struct {
	mu           sync.Mutex
	queue        []Transaction
	acked        Version
	delivered    map[Version]bool
	resetCh      chan struct{}
	subscribeErr error
}

func NewTestAdapter() *TestAdapter {
	return &TestAdapter{
		delivered: make(map[Version]bool),
		resetCh:   make(chan struct{}),
	}
}

// Enqueue appends a transaction the next Subscribe call will deliver.
func (a *TestAdapter) Enqueue(tx Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, tx)
}

// Subscribe delivers queued transactions in order. Once the queue is
// drained it blocks — like a real streaming source awaiting the next
// upstream commit — until ctx is cancelled or StopWithError names a
// terminal error, rather than closing ch the instant it runs dry.
func (a *TestAdapter) Subscribe(ctx context.Context, fromVersion Version, ch chan<- Transaction) error {
	defer close(ch)
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			err := a.subscribeErr
			a.mu.Unlock()
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
			continue
		}
		tx := a.queue[0]
		a.queue = a.queue[1:]
		a.mu.Unlock()

		select {
		case ch <- tx:
			a.mu.Lock()
			a.delivered[tx.Version] = true
			a.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *TestAdapter) Ack(version Version) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = version
	return nil
}

func (a *TestAdapter) GotCallback(version Version) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delivered[version]
}

func (a *TestAdapter) Reset() <-chan struct{} {
	return a.resetCh
}

// TriggerReset fires the adapter's reset signal once.
func (a *TestAdapter) TriggerReset() {
	close(a.resetCh)
}

// StopWithError makes the next drained Subscribe call return err once
// the queue empties, simulating an upstream failure.
func (a *TestAdapter) StopWithError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribeErr = err
}
