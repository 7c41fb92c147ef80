package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RefreshFunc is the action wrapped by ScheduledRefresh.
type RefreshFunc func(ctx context.Context) error

// ScheduledRefresh runs a RefreshFunc at most once per interval.
// Calls arriving too soon are dropped and observe the previous result.
type ScheduledRefresh struct {
	action RefreshFunc
	now    func() time.Time

	// runMu serializes executions; stateMu guards the fields below and is never
	// held while the action runs.
	runMu    sync.Mutex
	stateMu  sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration

	// lastRun is when the last execution was admitted; zero before the first one.
	lastRun time.Time
	lastErr error
	runs    uint64
}

// NewScheduledRefresh wraps action with an interval throttle. now may be nil.
func NewScheduledRefresh(interval time.Duration, action RefreshFunc, now func() time.Time) *ScheduledRefresh {
	if now == nil {
		now = time.Now
	}
	return &ScheduledRefresh{
		action:   action,
		now:      now,
		limiter:  newIntervalLimiter(interval),
		interval: interval,
	}
}

func newIntervalLimiter(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// limiterSince returns a limiter whose only token was spent at lastRun, so it
// refills exactly one interval after that run.
func limiterSince(interval time.Duration, lastRun time.Time) *rate.Limiter {
	limiter := newIntervalLimiter(interval)
	if !lastRun.IsZero() {
		limiter.AllowN(lastRun, 1)
	}
	return limiter
}

// Tick runs the action if no execution started within the last interval.
// It reports whether the action ran together with the (possibly previous) result.
func (s *ScheduledRefresh) Tick(ctx context.Context) (bool, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stateMu.Lock()
	now := s.now()
	allowed := s.limiter.AllowN(now, 1)
	if allowed {
		s.lastRun = now
	}
	lastErr := s.lastErr
	s.stateMu.Unlock()

	if !allowed {
		return false, lastErr
	}
	return true, s.run(ctx)
}

// Force runs the action regardless of the throttle and restarts the window.
func (s *ScheduledRefresh) Force(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stateMu.Lock()
	s.lastRun = s.now()
	s.limiter = limiterSince(s.interval, s.lastRun)
	s.stateMu.Unlock()

	return s.run(ctx)
}

func (s *ScheduledRefresh) run(ctx context.Context) error {
	err := s.action(ctx)

	s.stateMu.Lock()
	s.lastErr = err
	s.runs++
	s.stateMu.Unlock()
	return err
}

// UpdateInterval changes the window for subsequent calls. The next run is admitted
// once the new interval has elapsed since the last run. It never triggers a run.
func (s *ScheduledRefresh) UpdateInterval(interval time.Duration) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if interval == s.interval {
		return
	}
	s.interval = interval
	s.limiter = limiterSince(interval, s.lastRun)
}

// Interval returns the current window.
func (s *ScheduledRefresh) Interval() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.interval
}

// Runs returns how many times the action has been executed.
func (s *ScheduledRefresh) Runs() uint64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.runs
}
