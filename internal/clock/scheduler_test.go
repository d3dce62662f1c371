package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"btc-advisor-bot/internal/model"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestNextBoundaryHourly(t *testing.T) {
	loc := mustLoc(t, "UTC")
	s := &Scheduler{loc: loc}
	now := time.Date(2026, 8, 3, 10, 17, 0, 0, loc)
	got := s.nextBoundaryAt(model.Timeframe1h, now)
	want := time.Date(2026, 8, 3, 11, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("nextBoundary(1h) at %v = %v, want %v", now, got, want)
	}
}

func TestNextBoundary4hAnchoredAtOne(t *testing.T) {
	loc := mustLoc(t, "UTC")
	s := &Scheduler{loc: loc}
	now := time.Date(2026, 8, 3, 14, 0, 0, 0, loc)
	got := s.nextBoundaryAt(model.Timeframe4h, now)
	want := time.Date(2026, 8, 3, 17, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("nextBoundary(4h) at %v = %v, want %v", now, got, want)
	}
}

func TestNextBoundary4hJustAfterAnchor(t *testing.T) {
	loc := mustLoc(t, "UTC")
	s := &Scheduler{loc: loc}
	now := time.Date(2026, 8, 3, 0, 30, 0, 0, loc)
	got := s.nextBoundaryAt(model.Timeframe4h, now)
	want := time.Date(2026, 8, 3, 1, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("nextBoundary(4h) at %v = %v, want %v", now, got, want)
	}
}

func TestNextBoundaryDailyCrossesMidnight(t *testing.T) {
	loc := mustLoc(t, "UTC")
	s := &Scheduler{loc: loc}
	now := time.Date(2026, 8, 3, 2, 0, 0, 0, loc)
	got := s.nextBoundaryAt(model.Timeframe1d, now)
	want := time.Date(2026, 8, 4, 1, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("nextBoundary(1d) at %v = %v, want %v", now, got, want)
	}
}

func TestDispatchDropsOverlap(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fire := func(ctx context.Context, tf model.Timeframe, scheduled time.Time) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
	}
	s, err := New("UTC", fire, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.dispatch(context.Background(), model.Timeframe1h, time.Now())
	}()
	<-started
	go func() {
		defer wg.Done()
		s.dispatch(context.Background(), model.Timeframe1h, time.Now())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fire called %d times, want 1 (overlap should be dropped)", got)
	}
}

func TestTriggerEnqueuesFinalAfter4h(t *testing.T) {
	var finalCalls int32
	fire := func(ctx context.Context, tf model.Timeframe, scheduled time.Time) {}
	final := func(ctx context.Context, tf model.Timeframe, scheduled time.Time) {
		atomic.AddInt32(&finalCalls, 1)
	}
	s, err := New("UTC", fire, final)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ok := s.Trigger(context.Background(), model.Timeframe4h); !ok {
		t.Fatal("Trigger returned false")
	}
	if got := atomic.LoadInt32(&finalCalls); got != 1 {
		t.Errorf("final fired %d times, want 1", got)
	}
}
