// Package timer schedules delayed, cancellable callbacks keyed by string.
// Re-arming an existing key cancels the previous timer first, so repeated
// triggers reset a countdown instead of stacking.
package timer

import (
	"sync"
	"time"
)

// Stopper cancels a pending timer. time.Timer satisfies it via Stop.
type Stopper interface {
	Stop() bool
}

// ArmFunc arms a one-shot timer; tests substitute a manual implementation.
type ArmFunc func(d time.Duration, fn func()) Stopper

// Scheduler owns the key → pending timer mapping.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*pending
	arm    ArmFunc
}

type pending struct {
	stop Stopper
}

// New returns a Scheduler backed by time.AfterFunc.
func New() *Scheduler {
	return NewWithArm(func(d time.Duration, fn func()) Stopper {
		return time.AfterFunc(d, fn)
	})
}

// NewWithArm returns a Scheduler using a custom arming function.
func NewWithArm(arm ArmFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*pending),
		arm:    arm,
	}
}

// Schedule arms fn to run after delay, cancelling any timer already pending
// under key. Firing removes the registration before invoking fn, so a
// callback that wants to repeat must reschedule itself.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[key]; ok {
		prev.stop.Stop()
	}

	p := &pending{}
	p.stop = s.arm(delay, func() {
		s.mu.Lock()
		// A fire that lost the race against a re-arm or cancel is stale.
		if s.timers[key] != p {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = p
}

// Cancel stops and forgets the timer under key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[key]; ok {
		p.stop.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		p.stop.Stop()
		delete(s.timers, key)
	}
}

// Pending reports whether a timer is armed under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}
