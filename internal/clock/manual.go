package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a stepping Scheduler for tests. Timers only fire when Advance
// moves the clock past their deadline; callbacks run synchronously on the
// advancing goroutine.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	pending map[int]*manualTimer
}

func NewManual(start time.Time) *Manual {
	return &Manual{
		now:     start,
		pending: make(map[int]*manualTimer),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &manualTimer{
		owner:    m,
		id:       m.nextID,
		deadline: m.now.Add(d),
		fn:       fn,
	}
	m.pending[t.id] = t
	return t
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	// Manual sleeps complete immediately; tests advance time explicitly.
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	due := m.collectDueLocked()
	m.mu.Unlock()
	fire(due)
	return nil
}

// Advance moves the clock forward and fires every timer whose deadline has
// passed, in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	due := m.collectDueLocked()
	m.mu.Unlock()
	fire(due)
}

// Pending returns the number of timers that have not yet fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manual) collectDueLocked() []*manualTimer {
	var due []*manualTimer
	for id, t := range m.pending {
		if !t.deadline.After(m.now) {
			due = append(due, t)
			delete(m.pending, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}

func fire(due []*manualTimer) {
	for _, t := range due {
		t.fn()
	}
}

type manualTimer struct {
	owner    *Manual
	id       int
	deadline time.Time
	fn       func()
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if _, ok := t.owner.pending[t.id]; !ok {
		return false
	}
	delete(t.owner.pending, t.id)
	return true
}
