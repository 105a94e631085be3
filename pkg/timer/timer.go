// Package timer provides the single polled retransmission timer owned by the sender.
package timer

import (
	"time"
)

// DefaultDuration is the retransmission timeout used when none is configured.
const DefaultDuration = time.Second

// Timer is a polled, restartable one-shot timer.
//
// Start always arms a fresh deadline, whether or not the timer is running.
// Expired is a pure query: it does not consume the expiry, so it keeps
// reporting true until the timer is started again or stopped.
type Timer interface {
	SetDuration(d time.Duration)
	Start()
	Stop()
	Expired() bool
	Running() bool
}

// Clock returns the current time.
type Clock func() time.Time

// Retransmission implements Timer on top of a Clock.
type Retransmission struct {
	now      Clock
	duration time.Duration
	deadline time.Time
	running  bool
}

// New constructs a stopped Retransmission timer using the wall clock.
func New(d time.Duration) *Retransmission {
	return NewWithClock(d, time.Now)
}

// NewWithClock constructs a stopped Retransmission timer reading time from clock.
func NewWithClock(d time.Duration, clock Clock) *Retransmission {
	if clock == nil {
		clock = time.Now
	}
	if d <= 0 {
		d = DefaultDuration
	}
	return &Retransmission{now: clock, duration: d}
}

// SetDuration changes the timeout applied by subsequent calls to Start.
// Non-positive durations are ignored.
func (t *Retransmission) SetDuration(d time.Duration) {
	if d > 0 {
		t.duration = d
	}
}

// Duration returns the configured timeout.
func (t *Retransmission) Duration() time.Duration {
	return t.duration
}

// Start arms the timer with a deadline one duration from now.
func (t *Retransmission) Start() {
	t.deadline = t.now().Add(t.duration)
	t.running = true
}

// Stop disarms the timer.
func (t *Retransmission) Stop() {
	t.running = false
}

// Running reports whether the timer is armed.
func (t *Retransmission) Running() bool {
	return t.running
}

// Expired reports whether the timer is armed and its deadline has passed.
func (t *Retransmission) Expired() bool {
	return t.running && !t.now().Before(t.deadline)
}
