// Package clock abstracts timers and sleeps so debounce and backoff logic is
// testable without real time passing.
package clock

import (
	"context"
	"time"
)

// Timer is a single-shot scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Scheduler schedules single-shot callbacks and provides the current time.
type Scheduler interface {
	Now() time.Time
	// Schedule runs fn after d on the scheduler's own goroutine.
	Schedule(d time.Duration, fn func()) Timer
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the production Scheduler backed by the time package.
type Real struct{}

func NewReal() *Real { return &Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Schedule(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool { return r.t.Stop() }
