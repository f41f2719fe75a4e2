// Package schedule runs delayed tasks that can be cancelled.
//
// Tasks are driven by a k8s.io/utils/clock clock so tests can substitute a
// FakeClock and advance time explicitly. Callbacks always run on their own
// goroutine; Wait blocks until every fired callback has returned.
package schedule

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Scheduler creates delayed tasks on a clock.
type Scheduler struct {
	clock   clock.WithDelayedExecution
	running sync.WaitGroup
}

// New returns a Scheduler using c, or the real clock when c is nil.
func New(c clock.WithDelayedExecution) *Scheduler {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Scheduler{clock: c}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once d has elapsed, unless the returned Task is cancelled first.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{}
	timer := s.clock.AfterFunc(d, func() {
		// FakeClock invokes this while holding its own lock, so the callback
		// must not run inline.
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			t.run(fn)
		}()
	})

	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()

	return t
}

// Wait blocks until all callbacks that have already fired have returned.
func (s *Scheduler) Wait() {
	s.running.Wait()
}

// Task is a cancellation handle for a delayed callback.
type Task struct {
	mu        sync.Mutex
	timer     clock.Timer
	cancelled bool
	fired     bool
}

// Cancel prevents the callback from running. It returns false when the
// callback already started or the task was already cancelled.
// A nil Task is treated as already finished.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// Pending reports whether the callback is still waiting to run.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.fired && !t.cancelled
}

func (t *Task) run(fn func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	fn()
}
