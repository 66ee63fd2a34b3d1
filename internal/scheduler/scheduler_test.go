package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestJobsRunImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int64
	s := New(zap.NewNop(), Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	got := runs.Load()
	assert.GreaterOrEqual(t, got, int64(2), "immediate pass plus at least one tick")
}

func TestPanickingJobIsContained(t *testing.T) {
	var after atomic.Int64
	s := New(zap.NewNop(),
		Job{
			Name:     "explodes",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				panic("boom")
			},
		},
		Job{
			Name:     "survives",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				after.Add(1)
				return nil
			},
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, after.Load(), int64(2), "sibling job keeps running")
}

func TestFailingJobKeepsTicking(t *testing.T) {
	var runs atomic.Int64
	s := New(zap.NewNop(), Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("transient")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, runs.Load(), int64(2))
}

func TestTickContextIsBounded(t *testing.T) {
	sawDeadline := make(chan bool, 1)
	s := New(zap.NewNop(), Job{
		Name:     "bounded",
		Interval: time.Hour,
		Timeout:  20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			select {
			case sawDeadline <- ok:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.True(t, <-sawDeadline)
}
