// Package autosave debounces rapid field edits into a single remote update
// per draft, with bounded in-process retry and handoff to the offline queue
// when the network is down.
package autosave

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nacalab/editcore/internal/clock"
	"github.com/nacalab/editcore/internal/netmon"
	"github.com/nacalab/editcore/internal/offline"
	"github.com/nacalab/editcore/pkg/object"
)

const (
	// DefaultDebounce is how long the coordinator waits for further edits
	// before firing a save.
	DefaultDebounce = 2 * time.Second
	// MaxRetries bounds in-process retry attempts while online.
	MaxRetries = 3
)

// Status is the coordinator's observable state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// Saver performs the remote draft update. The API client satisfies it.
type Saver interface {
	UpdateDraft(ctx context.Context, draftID string, fields object.Fields) error
	DraftURL(draftID string) string
	DraftHeaders() map[string]string
}

// Enqueuer is the offline-queue slice used for handoff.
type Enqueuer interface {
	Add(url, method string, headers map[string]string, body []byte) offline.Request
}

// StatusListener observes state transitions. msg is non-empty only for
// StatusError.
type StatusListener func(status Status, msg string)

// SaveObserver observes each finished save round: the final attempt's
// latency, the total attempt count and the outcome. Offline handoffs are not
// reported; the queue owns recovery from that point on.
type SaveObserver func(latency time.Duration, attempts int, ok bool)

// Config tunes a coordinator.
type Config struct {
	Debounce   time.Duration
	MaxRetries int
	// MergePending shallow-merges a new QueueSave's field map into the
	// outstanding one instead of replacing it, so edits to disjoint fields
	// within one debounce window are not lost.
	MergePending bool
}

type pendingChange struct {
	draftID string
	fields  object.Fields
	at      time.Time
}

// Coordinator is the autosave state machine. At most one pending change and
// one in-flight save exist per instance.
type Coordinator struct {
	saver   Saver
	queue   Enqueuer
	monitor netmon.Monitor
	sched   clock.Scheduler
	log     *slog.Logger
	cfg     Config

	mu         sync.Mutex
	status     Status
	errMsg     string
	pending    *pendingChange
	timer      clock.Timer
	inFlight   bool
	lastSave   time.Duration
	nextSub    int
	listeners  map[int]StatusListener
	onComplete SaveObserver
}

// New creates an idle coordinator.
func New(saver Saver, queue Enqueuer, monitor netmon.Monitor, sched clock.Scheduler, log *slog.Logger, cfg Config) *Coordinator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxRetries
	}
	if sched == nil {
		sched = clock.NewReal()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		saver:     saver,
		queue:     queue,
		monitor:   monitor,
		sched:     sched,
		log:       log,
		cfg:       cfg,
		status:    StatusIdle,
		listeners: make(map[int]StatusListener),
	}
}

// Status returns the current state and, for StatusError, the failure message.
func (c *Coordinator) Status() (Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.errMsg
}

// LastSaveDuration reports how long the most recent successful save took.
func (c *Coordinator) LastSaveDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSave
}

// OnStatusChange registers a listener; the returned cancel removes it.
func (c *Coordinator) OnStatusChange(fn StatusListener) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// OnSaveComplete installs the observer for finished save rounds.
func (c *Coordinator) OnSaveComplete(fn SaveObserver) {
	c.mu.Lock()
	c.onComplete = fn
	c.mu.Unlock()
}

// QueueSave stages a change for later save and (re)starts the debounce
// window. By default the newest call's field set fully replaces the prior
// pending set; with MergePending the maps are shallow-merged. A new change
// for a different draft always replaces. The retry budget resets.
func (c *Coordinator) QueueSave(draftID string, changes object.Fields) {
	c.mu.Lock()
	if c.cfg.MergePending && c.pending != nil && c.pending.draftID == draftID {
		for k, v := range changes {
			c.pending.fields[k] = v
		}
		c.pending.at = c.sched.Now()
	} else {
		fields := make(object.Fields, len(changes))
		for k, v := range changes {
			fields[k] = v
		}
		c.pending = &pendingChange{draftID: draftID, fields: fields, at: c.sched.Now()}
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.sched.Schedule(c.cfg.Debounce, c.fire)
	notify := c.setStatusLocked(StatusPending, "")
	c.mu.Unlock()
	notify()
}

// ForceSave cancels the debounce timer and saves immediately if a change is
// outstanding. Used for flush-on-navigate-away.
func (c *Coordinator) ForceSave() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	hasPending := c.pending != nil
	c.mu.Unlock()
	if hasPending {
		c.fire()
	}
}

// Cancel discards pending work and returns to idle without saving.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	notify := c.setStatusLocked(StatusIdle, "")
	c.mu.Unlock()
	notify()
}

// fire picks up the pending change and runs the save attempt loop. If a save
// is already in flight the pending change is rescheduled — there is never
// more than one attempt running.
func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.inFlight {
		c.timer = c.sched.Schedule(c.cfg.Debounce, c.fire)
		c.mu.Unlock()
		return
	}
	if c.pending == nil {
		c.mu.Unlock()
		return
	}
	change := *c.pending
	c.pending = nil
	c.inFlight = true
	c.mu.Unlock()

	c.save(change)

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Coordinator) save(change pendingChange) {
	// Offline at fire time: hand the whole change to the offline queue and
	// let it own recovery.
	if !c.monitor.Online() {
		c.handOff(change)
		return
	}

	for attempt := 0; ; attempt++ {
		c.setStatus(StatusSaving, "")
		start := c.sched.Now()
		err := c.saver.UpdateDraft(context.Background(), change.draftID, change.fields)
		if err == nil {
			latency := c.sched.Now().Sub(start)
			c.mu.Lock()
			c.lastSave = latency
			done := c.onComplete
			c.mu.Unlock()
			c.setStatus(StatusSaved, "")
			c.setStatus(StatusIdle, "")
			if done != nil {
				done(latency, attempt+1, true)
			}
			return
		}

		// The browser flag flipping mid-retry escalates to the queue.
		if !c.monitor.Online() {
			c.handOff(change)
			return
		}

		if attempt >= c.cfg.MaxRetries {
			msg := fmt.Sprintf("autosave failed after %d retries: %v", c.cfg.MaxRetries, err)
			c.log.Error("autosave gave up", "draftId", change.draftID, "error", err)
			c.setStatus(StatusError, msg)
			c.mu.Lock()
			done := c.onComplete
			c.mu.Unlock()
			if done != nil {
				done(c.sched.Now().Sub(start), attempt+1, false)
			}
			return
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		c.log.Warn("autosave attempt failed, backing off",
			"draftId", change.draftID, "attempt", attempt+1, "backoff", backoff, "error", err)
		c.setStatus(StatusError, err.Error())
		if sleepErr := c.sched.Sleep(context.Background(), backoff); sleepErr != nil {
			return
		}
	}
}

// handOff queues the change as a replayable PATCH and settles.
func (c *Coordinator) handOff(change pendingChange) {
	body, err := json.Marshal(change.fields)
	if err != nil {
		c.setStatus(StatusError, fmt.Sprintf("marshal pending change: %v", err))
		return
	}
	c.queue.Add(c.saver.DraftURL(change.draftID), "PATCH", c.saver.DraftHeaders(), body)
	c.log.Info("autosave handed off to offline queue", "draftId", change.draftID)
	c.setStatus(StatusSaved, "")
	c.setStatus(StatusIdle, "")
}

func (c *Coordinator) setStatus(s Status, msg string) {
	c.mu.Lock()
	notify := c.setStatusLocked(s, msg)
	c.mu.Unlock()
	notify()
}

// setStatusLocked updates state and returns a func that delivers the
// transition to a snapshot of the listeners. The caller invokes it after
// releasing the lock so listeners see transitions in order and may call back
// into the coordinator.
func (c *Coordinator) setStatusLocked(s Status, msg string) func() {
	c.status = s
	c.errMsg = msg
	fns := make([]StatusListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(s, msg)
		}
	}
}
