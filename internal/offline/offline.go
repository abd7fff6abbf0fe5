// Package offline provides durable, at-least-once delivery of mutating HTTP
// requests while the network is unavailable or the server is failing. The
// queue persists write-through and replays sequentially in FIFO order; a
// persistently failing request blocks everything behind it on purpose, since
// later mutations may depend on earlier ones landing.
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nacalab/editcore/internal/clock"
	"github.com/nacalab/editcore/internal/model"
	"github.com/nacalab/editcore/internal/netmon"
	"github.com/nacalab/editcore/internal/queue"
)

const (
	// MaxRetries bounds 5xx replays per request before the queue gives up.
	MaxRetries = 3
	// DefaultRetryAfter is used when a 429 carries no Retry-After header.
	DefaultRetryAfter = 60 * time.Second
)

// Request is one queued mutating call. Method, headers and body are opaque to
// the queue; only the replayed status code is interpreted.
type Request struct {
	ID         string
	URL        string
	Method     string
	Headers    map[string]string
	Body       []byte
	EnqueuedAt time.Time
	RetryCount int
}

// Persister is the durable store slice the queue writes through to.
type Persister interface {
	SaveQueue([]model.QueuedRequest) error
	LoadQueue() ([]model.QueuedRequest, error)
}

// Doer issues the replayed requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Listener is notified with a snapshot of the queue after every mutation.
type Listener func(items []Request)

// Queue is the offline request queue.
type Queue struct {
	items   *queue.Queue[Request]
	persist Persister
	doer    Doer
	monitor netmon.Monitor
	sched   clock.Scheduler
	log     *slog.Logger

	mu       sync.Mutex
	flushing bool
	nextSub  int
	subs     map[int]Listener

	unsubMonitor func()
}

// New creates the queue, loading any requests persisted by a previous
// session. Corrupt persisted rows are logged and skipped.
func New(persist Persister, doer Doer, monitor netmon.Monitor, sched clock.Scheduler, log *slog.Logger) (*Queue, error) {
	if log == nil {
		log = slog.Default()
	}
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if sched == nil {
		sched = clock.NewReal()
	}

	q := &Queue{
		items:   queue.New[Request](),
		persist: persist,
		doer:    doer,
		monitor: monitor,
		sched:   sched,
		log:     log,
		subs:    make(map[int]Listener),
	}

	records, err := persist.LoadQueue()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		req, ok := fromRecord(rec, log)
		if !ok {
			continue
		}
		q.items.Push(req)
	}

	q.unsubMonitor = monitor.Subscribe(func(online bool) {
		// Going offline only flips the flag; going online drains.
		if online {
			go func() { _ = q.Flush(context.Background()) }()
		}
	})

	return q, nil
}

// Close detaches the network listener. In-flight flushes finish on their own.
func (q *Queue) Close() {
	if q.unsubMonitor != nil {
		q.unsubMonitor()
	}
}

// Online reports the monitor's current network flag.
func (q *Queue) Online() bool {
	return q.monitor.Online()
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return q.items.Len()
}

// List returns a snapshot of the queue in FIFO order.
func (q *Queue) List() []Request {
	return q.items.Items()
}

// Subscribe registers a listener for queue mutations. The returned cancel
// func removes it.
func (q *Queue) Subscribe(fn Listener) (cancel func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSub++
	id := q.nextSub
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// Add enqueues a request, persists the queue and, if the network is up,
// kicks off a flush in the background. The assigned id is returned.
func (q *Queue) Add(url, method string, headers map[string]string, body []byte) Request {
	req := Request{
		ID:         uuid.NewString(),
		URL:        url,
		Method:     method,
		Headers:    headers,
		Body:       body,
		EnqueuedAt: q.sched.Now(),
	}
	q.items.Push(req)
	q.persistQueue()
	q.notify()

	if q.monitor.Online() {
		go func() { _ = q.Flush(context.Background()) }()
	}
	return req
}

// Remove drops a request by id.
func (q *Queue) Remove(id string) {
	if q.items.RemoveFunc(func(r Request) bool { return r.ID == id }) > 0 {
		q.persistQueue()
		q.notify()
	}
}

// Clear drops every queued request.
func (q *Queue) Clear() {
	q.items.Clear()
	q.persistQueue()
	q.notify()
}

// Flush replays a snapshot of the queue sequentially. A concurrent call while
// a flush is in progress is a no-op. Requests added mid-flush are not part of
// the snapshot and wait for the next pass.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return nil
	}
	q.flushing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	snapshot := q.items.Items()
	for _, req := range snapshot {
		status, retryAfter, err := q.send(ctx, req)
		if err != nil {
			// Transport failure: leave the queue untouched and end the pass.
			q.log.Warn("offline flush stopped on transport error", "id", req.ID, "error", err)
			return nil
		}

		switch {
		case status >= 200 && status <= 299:
			q.items.RemoveFunc(func(r Request) bool { return r.ID == req.ID })
			q.persistQueue()
			q.notify()

		case status == http.StatusTooManyRequests:
			// Rate limited: wait out the server-specified delay, then end the
			// pass. The request stays queued and does not burn a retry.
			q.log.Info("offline flush rate-limited", "id", req.ID, "retryAfter", retryAfter)
			_ = q.sched.Sleep(ctx, retryAfter)
			return nil

		case status >= 500:
			gaveUp := false
			q.items.UpdateFunc(
				func(r Request) bool { return r.ID == req.ID },
				func(r *Request) { r.RetryCount++ },
			)
			q.items.RemoveFunc(func(r Request) bool {
				if r.ID == req.ID && r.RetryCount > MaxRetries {
					gaveUp = true
					return true
				}
				return false
			})
			q.persistQueue()
			q.notify()
			if gaveUp {
				q.log.Warn("offline request dropped after retries exhausted",
					"id", req.ID, "url", req.URL, "status", status)
				continue
			}
			// Head-of-line blocking: the failing request stays at the front.
			return nil

		default:
			// Non-retryable client error: drop and keep going.
			q.log.Warn("offline request dropped as non-retryable",
				"id", req.ID, "url", req.URL, "status", status)
			q.items.RemoveFunc(func(r Request) bool { return r.ID == req.ID })
			q.persistQueue()
			q.notify()
		}
	}
	return nil
}

// send issues one replay and reports the status code plus any Retry-After.
func (q *Queue) send(ctx context.Context, req Request) (status int, retryAfter time.Duration, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, 0, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := q.doer.Do(httpReq)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	retryAfter = DefaultRetryAfter
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, parseErr := strconv.Atoi(v); parseErr == nil && secs >= 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return resp.StatusCode, retryAfter, nil
}

func (q *Queue) persistQueue() {
	items := q.items.Items()
	records := make([]model.QueuedRequest, len(items))
	for i, req := range items {
		records[i] = toRecord(req)
	}
	if err := q.persist.SaveQueue(records); err != nil {
		q.log.Error("failed to persist offline queue", "error", err)
	}
}

func (q *Queue) notify() {
	q.mu.Lock()
	fns := make([]Listener, 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	items := q.items.Items()
	for _, fn := range fns {
		fn(items)
	}
}

func toRecord(req Request) model.QueuedRequest {
	headers, _ := json.Marshal(req.Headers)
	return model.QueuedRequest{
		RequestID:  req.ID,
		URL:        req.URL,
		Method:     req.Method,
		Headers:    headers,
		Body:       req.Body,
		EnqueuedAt: req.EnqueuedAt,
		RetryCount: req.RetryCount,
	}
}

func fromRecord(rec model.QueuedRequest, log *slog.Logger) (Request, bool) {
	if rec.RequestID == "" || rec.URL == "" || rec.Method == "" {
		log.Warn("skipping corrupt queued request record", "id", rec.ID)
		return Request{}, false
	}
	var headers map[string]string
	if len(rec.Headers) > 0 {
		if err := json.Unmarshal(rec.Headers, &headers); err != nil {
			log.Warn("corrupt headers on queued request, replaying without them",
				"requestId", rec.RequestID, "error", err)
			headers = nil
		}
	}
	return Request{
		ID:         rec.RequestID,
		URL:        rec.URL,
		Method:     rec.Method,
		Headers:    headers,
		Body:       rec.Body,
		EnqueuedAt: rec.EnqueuedAt,
		RetryCount: rec.RetryCount,
	}, true
}
