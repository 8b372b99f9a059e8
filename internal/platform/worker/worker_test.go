package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errIteration = errors.New("iteration failed")

func TestLoop_OnceRunsSingleIteration(t *testing.T) {
	var calls atomic.Int32

	err := Loop(context.Background(), LoopConfig{
		Name: "test",
		Once: true,
		Process: func(context.Context) (int, error) {
			calls.Add(1)

			return 5, nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoop_ContinuesAfterErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	err := Loop(ctx, LoopConfig{
		Name:     "test",
		IdleWait: time.Millisecond,
		Process: func(context.Context) (int, error) {
			switch calls.Add(1) {
			case 1:
				return 0, errIteration
			case 2:
				panic("boom")
			case 3:
				cancel()
			}

			return 0, nil
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoop_IterationDeadline(t *testing.T) {
	var sawDeadline atomic.Bool

	err := Loop(context.Background(), LoopConfig{
		Name:    "test",
		Once:    true,
		Timeout: 10 * time.Millisecond,
		Process: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))

			return 0, ctx.Err()
		},
	})

	require.NoError(t, err)
	assert.True(t, sawDeadline.Load())
}

func TestEvery_Once(t *testing.T) {
	var calls atomic.Int32

	err := Every(context.Background(), ScheduleConfig{
		Name:     "test",
		Interval: time.Hour,
		Once:     true,
		Run: func(context.Context) error {
			calls.Add(1)

			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEvery_RunsOnTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var calls atomic.Int32

	err := Every(ctx, ScheduleConfig{
		Name:       "test",
		Interval:   20 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			calls.Add(1)

			return errIteration
		},
	})

	require.Error(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
