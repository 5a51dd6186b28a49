package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerYieldsAtConfiguredThreshold(t *testing.T) {
	clock := NewSyntheticClock(time.Unix(0, 0))
	timer := NewTimeSliceTimer(clock, 250*time.Millisecond)
	sched := New(timer, nil, nil)

	var appliedRows []int
	steps := make([]Step, 9)
	for i := 0; i < 9; i++ {
		i := i
		steps[i] = func() error {
			clock.Advance(100 * time.Millisecond)
			appliedRows = append(appliedRows, i)
			return nil
		}
	}

	err := sched.Run(context.Background(), "advance", steps)
	require.NoError(t, err)
	require.Equal(t, 3, sched.YieldCount(), "9 inserts at 100ms each must yield exactly at laps 3, 6, 9")
	require.Len(t, appliedRows, 9)
}

func TestSchedulerPropagatesShouldYieldError(t *testing.T) {
	clock := NewSyntheticClock(time.Unix(0, 0))
	timer := NewTimeSliceTimer(clock, 50*time.Millisecond)
	boom := func(string) error { return context.DeadlineExceeded }
	sched := New(timer, boom, nil)

	steps := []Step{
		func() error { clock.Advance(100 * time.Millisecond); return nil },
		func() error { t.Fatal("must not run after yield aborts"); return nil },
	}

	err := sched.Run(context.Background(), "advance", steps)
	require.Error(t, err)
}
