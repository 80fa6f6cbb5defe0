package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30m", 30 * time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{" 1H ", time.Hour, true},
		{"", 0, false},
		{"h", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"10x", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseInterval(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestIntervalScheduler_RunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, 10*time.Millisecond)

	var runs int32
	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if atomic.AddInt32(&runs, 1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after ctx cancel")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}

func TestIntervalScheduler_RunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, time.Hour)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	go s.Start(func() {
		ran <- struct{}{}
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate run did not happen")
	}
}

func TestIntervalScheduler_InvalidInterval(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), 0)
	// 非法间隔直接返回,不会卡住
	s.Start(func() { t.Fatal("must not run") })
}
