package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacer_Spacing(t *testing.T) {
	const (
		interval = 20 * time.Millisecond
		launches = 6
	)
	p := NewPacer(interval)

	start := time.Now()
	for range launches {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// The first launch is immediate, every further one waits an interval.
	want := time.Duration(launches-1)*interval - time.Millisecond
	if elapsed < want {
		t.Errorf("%d launches took %v, want at least %v", launches, elapsed, want)
	}
}

func TestPacer_FirstLaunchImmediate(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
}

func TestPacer_Disabled(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		p := NewPacer(interval)
		start := time.Now()
		for range 1000 {
			if err := p.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("NewPacer(%v): 1000 launches took %v, want no pacing", interval, elapsed)
		}
	}
}

func TestPacer_Canceled(t *testing.T) {
	p := NewPacer(time.Hour)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() on canceled context error = %v, want context.Canceled", err)
	}
}
