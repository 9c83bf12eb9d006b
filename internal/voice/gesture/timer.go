// Package gesture turns a press-and-hold input into a single confirm signal.
//
// A gesture advances by Increment every TickInterval on the injected scheduler
// and confirms when progress reaches Complete. Each Begin opens a new
// generation; ticks from an older generation are ignored, so a cancelled or
// completed gesture can never confirm again.
package gesture

import (
	"sync"
	"time"

	"voiceid/pkg/platform/clock"
)

const (
	TickInterval = 50 * time.Millisecond
	Increment    = 5
	Complete     = 100
)

type Timer struct {
	sched       clock.Scheduler
	onConfirmed func()
	guard       func() bool
	onProgress  func(int)

	mu         sync.Mutex
	generation uint64
	active     bool
	progress   int
	stop       func()
}

type Option func(*Timer)

// WithGuard makes Begin a no-op whenever guard returns false.
func WithGuard(guard func() bool) Option {
	return func(t *Timer) {
		t.guard = guard
	}
}

// WithProgress observes every progress change, including the reset to 0.
func WithProgress(fn func(progress int)) Option {
	return func(t *Timer) {
		t.onProgress = fn
	}
}

func New(sched clock.Scheduler, onConfirmed func(), opts ...Option) *Timer {
	t := &Timer{sched: sched, onConfirmed: onConfirmed}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a gesture at progress 0. It returns false without side effects
// if the guard rejects or a gesture is already running.
func (t *Timer) Begin() bool {
	if t.guard != nil && !t.guard() {
		return false
	}

	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return false
	}
	t.generation++
	gen := t.generation
	t.active = true
	t.progress = 0
	t.mu.Unlock()

	t.notify(0)
	stop := t.sched.Every(TickInterval, func() { t.tick(gen) })

	t.mu.Lock()
	if t.active && t.generation == gen {
		t.stop = stop
		stop = nil
	}
	t.mu.Unlock()
	// The gesture ended before the tick source was recorded.
	if stop != nil {
		stop()
	}
	return true
}

// Cancel stops ticking and resets progress. Returns false if no gesture was running.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return false
	}
	t.active = false
	t.generation++
	t.progress = 0
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.notify(0)
	return true
}

// Reset clears the progress of a finished gesture. It does nothing while a
// gesture is being held.
func (t *Timer) Reset() {
	t.mu.Lock()
	if t.active || t.progress == 0 {
		t.mu.Unlock()
		return
	}
	t.progress = 0
	t.mu.Unlock()
	t.notify(0)
}

// Progress returns the current counter in [0, Complete].
func (t *Timer) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Active reports whether a gesture is being held.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if !t.active || t.generation != gen {
		t.mu.Unlock()
		return
	}
	t.progress += Increment
	if t.progress > Complete {
		t.progress = Complete
	}
	progress := t.progress
	done := progress == Complete
	var stop func()
	if done {
		t.active = false
		stop = t.stop
		t.stop = nil
	}
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.notify(progress)
	if done && t.onConfirmed != nil {
		t.onConfirmed()
	}
}

func (t *Timer) notify(progress int) {
	if t.onProgress != nil {
		t.onProgress(progress)
	}
}
