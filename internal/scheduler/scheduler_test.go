package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunTicksUntilCancelled(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		ticks++
		if ticks >= 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ticks < 3 {
		t.Fatalf("ticks = %d, want at least 3", ticks)
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		ticks++
		if ticks >= 2 {
			cancel()
			return nil
		}
		return errors.New("cycle lost")
	})

	if ticks < 2 {
		t.Fatalf("ticks = %d, want the loop to survive the error", ticks)
	}
}

func TestRunHonoursStartupDelayCancellation(t *testing.T) {
	s := New(Options{Interval: time.Minute, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(ctx context.Context, tick time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive interval")
		}
	}()
	New(Options{Interval: 0}, zerolog.Nop())
}
