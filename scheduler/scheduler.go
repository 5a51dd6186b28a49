// Package scheduler implements C7: a time-sliced cooperative runner that
// drives hydration and advance loops one Change at a time, yielding
// between whole Change applications once a configured time slice is
// exceeded, so many queries can share one logical execution context
// without starving each other (spec.md §4.6, §5).
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zerosync/ivmengine/internal/ivmerr"
)

// Clock abstracts wall-clock time so tests can drive elapsedLap
// deterministically (spec.md §8 S6) instead of sleeping real time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock, backed by time.Now.
var RealClock Clock = realClock{}

// SyntheticClock is a manually-advanced Clock for tests.
type SyntheticClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewSyntheticClock(start time.Time) *SyntheticClock {
	return &SyntheticClock{current: start}
}

func (c *SyntheticClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the synthetic clock forward by d, simulating the
// passage of time a step of work took.
func (c *SyntheticClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// TimeSliceTimer tracks elapsed wall-clock time within the current lap
// (the span since the last yield or reset).
type TimeSliceTimer struct {
	clock     Clock
	threshold time.Duration
	lapStart  time.Time
}

func NewTimeSliceTimer(clock Clock, threshold time.Duration) *TimeSliceTimer {
	if clock == nil {
		clock = RealClock
	}
	return &TimeSliceTimer{clock: clock, threshold: threshold, lapStart: clock.Now()}
}

// ElapsedLap returns how much time has passed in the current lap.
func (t *TimeSliceTimer) ElapsedLap() time.Duration {
	return t.clock.Now().Sub(t.lapStart)
}

// ShouldYield reports whether the current lap has exceeded the
// configured time slice.
func (t *TimeSliceTimer) ShouldYield() bool {
	return t.ElapsedLap() >= t.threshold
}

// Reset starts a new lap at the current clock time.
func (t *TimeSliceTimer) Reset() {
	t.lapStart = t.clock.Now()
}

// ShouldYield is supplied by the caller (the scheduler's own timer, a
// test harness, or a deadline-bounded caller) and decides whether a
// cooperative checkpoint should suspend processing. A non-nil error
// aborts the run; it is typically an ivmerr.Cancellation.
type ShouldYield func(label string) error

// Step applies one unit of work (one Change) to an operator graph. It
// is the caller's responsibility to make each Step atomic: the
// scheduler never yields mid-Step, only between Steps (spec.md §4.6).
type Step func() error

// Scheduler drives a sequence of Steps, checking ElapsedLap between
// each one and invoking YieldProcess when the configured slice has
// elapsed.
type Scheduler struct {
	timer       *TimeSliceTimer
	shouldYield ShouldYield
	log         *zap.Logger

	yieldCount int
}

func New(timer *TimeSliceTimer, shouldYield ShouldYield, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{timer: timer, shouldYield: shouldYield, log: log}
}

// YieldCount reports how many times YieldProcess has been called,
// including calls that the shouldYield check aborted, for tests asserting the exact yield cadence (spec.md §8
// S6).
func (s *Scheduler) YieldCount() int { return s.yieldCount }

// YieldProcess suspends processing: it runs the caller-supplied
// shouldYield check (which may abort the run), releases the goroutine
// so other cooperative work can proceed, and resets the lap timer so
// the next Step starts a fresh slice.
func (s *Scheduler) YieldProcess(ctx context.Context, label string) error {
	s.yieldCount++
	s.log.Debug("yielding", zap.String("label", label), zap.Int("yieldCount", s.yieldCount))

	if s.shouldYield != nil {
		if err := s.shouldYield(label); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ivmerr.Cancellation.Wrap(ctx.Err())
	default:
	}
	runtime.Gosched()
	s.timer.Reset()
	return nil
}

// Run drives steps to completion, yielding cooperatively whenever
// ElapsedLap crosses the configured slice. Every call starts at
// steps[0]; after a cancellation or error Run does not report how many
// steps completed.
func (s *Scheduler) Run(ctx context.Context, label string, steps []Step) error {
	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ivmerr.Cancellation.Wrap(ctx.Err())
		default:
		}
		if err := step(); err != nil {
			return err
		}
		if s.timer.ShouldYield() {
			if err := s.YieldProcess(ctx, label); err != nil {
				return err
			}
		}
	}
	return nil
}
