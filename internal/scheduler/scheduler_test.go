package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid", Job{Name: "ok", Interval: time.Second, Run: func(context.Context) error { return nil }}, false},
		{"missing run", Job{Name: "norun", Interval: time.Second}, true},
		{"zero interval", Job{Name: "zero", Run: func(context.Context) error { return nil }}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.job)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRunRepeatsJobs(t *testing.T) {
	var fast, failing, panicking atomic.Int32

	s, err := New(
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("boom")
		}},
		Job{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			panicking.Add(1)
			panic("oops")
		}},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return fast.Load() >= 3 && failing.Load() >= 3 && panicking.Load() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunImmediate(t *testing.T) {
	ran := make(chan struct{}, 1)

	s, err := New(Job{Name: "daily", Interval: 24 * time.Hour, Immediate: true, Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate job did not run")
	}
}
