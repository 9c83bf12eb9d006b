package clock

import (
	"context"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests. Periodic callbacks fire only
// from Advance, synchronously on the caller's goroutine. Sleep records the
// requested duration and returns immediately.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	tickers map[int]*manualTicker
	slept   []time.Duration
}

type manualTicker struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

// NewManual returns a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, tickers: make(map[int]*manualTicker)}
}

func (m *Manual) Every(interval time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.tickers[id] = &manualTicker{id: id, interval: interval, next: m.now.Add(interval), fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.tickers, id)
	}
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slept = append(m.slept, d)
	return nil
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves logical time forward by d, firing every tick that falls due in
// order. Callbacks may stop or register tickers.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		t := m.earliestLocked(target)
		if t == nil {
			break
		}
		m.now = t.next
		t.next = t.next.Add(t.interval)
		fn := t.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) earliestLocked(target time.Time) *manualTicker {
	var best *manualTicker
	for _, t := range m.tickers {
		if t.next.After(target) {
			continue
		}
		if best == nil || t.next.Before(best.next) || (t.next.Equal(best.next) && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Active reports how many periodic callbacks are still scheduled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Slept returns every duration passed to Sleep, in call order.
func (m *Manual) Slept() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.slept...)
}
