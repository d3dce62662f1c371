// Package clock drives periodic analysis triggers at wall-clock
// boundaries in a configured local timezone (spec.md §4.1). It sleeps
// until the next boundary rather than polling a fixed-interval ticker,
// so catch-up after a process pause still lands on the real boundary
// instead of drifting.
package clock

import (
	"context"
	"sync"
	"time"

	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
)

// TriggerFunc runs one analysis pass for a timeframe. scheduled is the
// boundary instant the trigger was computed for, not the wall-clock
// time the goroutine actually woke up.
type TriggerFunc func(ctx context.Context, tf model.Timeframe, scheduled time.Time)

// Scheduler fires TriggerFunc once per timeframe boundary, dropping
// overlapping fires and enqueuing the synthetic "final" pass after each
// 4h fire returns. TriggerFunc reports no outcome, so a failed 4h pass
// is followed by a final pass as well.
type Scheduler struct {
	loc      *time.Location
	fire     TriggerFunc
	final    TriggerFunc
	log      *logging.Logger

	mu          sync.Mutex
	inFlight    map[model.Timeframe]bool
	lastFiredAt map[model.Timeframe]time.Time
}

// New builds a Scheduler in the given IANA timezone. fire runs a
// per-timeframe trigger; final runs the synthetic combined pass enqueued
// after each 4h fire returns, whether or not that pass succeeded.
func New(tz string, fire, final TriggerFunc) (*Scheduler, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		loc:         loc,
		fire:        fire,
		final:       final,
		log:         logging.WithComponent("clock"),
		inFlight:    make(map[model.Timeframe]bool),
		lastFiredAt: make(map[model.Timeframe]time.Time),
	}, nil
}

// Run blocks, driving every enabled timeframe's boundary loop until ctx
// is cancelled. timeframes is the set to schedule (15m is typically
// omitted, per spec.md §4.1's "disabled by default").
func (s *Scheduler) Run(ctx context.Context, timeframes []model.Timeframe) {
	var wg sync.WaitGroup
	for _, tf := range timeframes {
		tf := tf
		if tf.Period() <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTimeframe(ctx, tf)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runTimeframe(ctx context.Context, tf model.Timeframe) {
	for {
		next := s.nextBoundary(tf)
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.dispatch(ctx, tf, next)
	}
}

// nextBoundary truncates now (in the scheduler's timezone) down to the
// timeframe's period and adds one period, per spec.md §4.1.
func (s *Scheduler) nextBoundary(tf model.Timeframe) time.Time {
	return s.nextBoundaryAt(tf, time.Now().In(s.loc))
}

// nextBoundaryAt is nextBoundary with an explicit "now", split out so
// the alignment arithmetic can be tested without real time passing.
func (s *Scheduler) nextBoundaryAt(tf model.Timeframe, now time.Time) time.Time {
	period := tf.Period()
	anchor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).Add(tf.BoundaryOffset())
	elapsed := now.Sub(anchor)
	periods := elapsed / period
	boundary := anchor.Add(periods * period)
	if !boundary.After(now) {
		boundary = boundary.Add(period)
	}
	return boundary
}

// dispatch runs the single-flight check and invokes fire. Catch-up is
// implicit: a process that wakes late still fires once for the boundary
// it was sleeping toward, then nextBoundary computes the following one
// from wall-clock now, so any boundaries passed in between are skipped.
func (s *Scheduler) dispatch(ctx context.Context, tf model.Timeframe, scheduled time.Time) {
	s.mu.Lock()
	if s.inFlight[tf] {
		s.mu.Unlock()
		s.log.Warn("dropping overlapping trigger", "timeframe", string(tf))
		return
	}
	s.inFlight[tf] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[tf] = false
		s.lastFiredAt[tf] = scheduled
		s.mu.Unlock()
	}()

	s.fire(ctx, tf, scheduled)

	if tf == model.Timeframe4h && s.final != nil {
		s.enqueueFinal(ctx, scheduled)
	}
}

// enqueueFinal runs the combined pass in its own single-flight slot so
// it never collides with a concurrent 4h re-fire.
func (s *Scheduler) enqueueFinal(ctx context.Context, scheduled time.Time) {
	s.mu.Lock()
	if s.inFlight[model.TimeframeFinal] {
		s.mu.Unlock()
		s.log.Warn("dropping overlapping final trigger")
		return
	}
	s.inFlight[model.TimeframeFinal] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[model.TimeframeFinal] = false
		s.lastFiredAt[model.TimeframeFinal] = scheduled
		s.mu.Unlock()
	}()

	s.final(ctx, model.TimeframeFinal, scheduled)
}

// Trigger is the manual override from spec.md §4.1: it bypasses the
// min-interval gate but still honors the in-flight flag for tf.
func (s *Scheduler) Trigger(ctx context.Context, tf model.Timeframe) bool {
	s.mu.Lock()
	if s.inFlight[tf] {
		s.mu.Unlock()
		s.log.Warn("manual trigger dropped, already in flight", "timeframe", string(tf))
		return false
	}
	s.inFlight[tf] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[tf] = false
		s.lastFiredAt[tf] = time.Now().In(s.loc)
		s.mu.Unlock()
	}()

	s.fire(ctx, tf, time.Now().In(s.loc))
	if tf == model.Timeframe4h && s.final != nil {
		s.enqueueFinal(ctx, time.Now().In(s.loc))
	}
	return true
}

// LastFiredAt returns the scheduled instant of the most recent
// completed fire for tf, and whether one has ever occurred.
func (s *Scheduler) LastFiredAt(tf model.Timeframe) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastFiredAt[tf]
	return t, ok
}
