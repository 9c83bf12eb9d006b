// Package clock provides the logical time source shared by the gesture timer,
// the capture duration counter, pipeline delays and polled persistence feeds.
//
// Components take a Scheduler instead of calling time.NewTicker directly so tests
// can drive every tick deterministically with Manual.
package clock

import (
	"context"
	"sync"
	"time"
)

// Scheduler schedules periodic callbacks and bounded waits.
type Scheduler interface {
	// Every calls fn every interval until the returned stop func is called.
	// Stop is idempotent and never blocks on an in-flight callback.
	Every(interval time.Duration, fn func()) (stop func())
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// Real is a Scheduler backed by the wall clock.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

func (Real) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// stop may race the tick; prefer stop.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (Real) Now() time.Time { return time.Now() }
