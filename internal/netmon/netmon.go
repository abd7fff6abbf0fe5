// Package netmon reports network reachability to the autosave coordinator and
// the offline queue. The editing session injects one Monitor instead of the
// engines reading ambient browser state.
package netmon

import (
	"context"
	"sync"
	"time"
)

// Monitor exposes the current online flag and transition notifications.
type Monitor interface {
	Online() bool
	// Subscribe registers fn to be called on every online/offline transition.
	// The returned cancel func removes the subscription.
	Subscribe(fn func(online bool)) (cancel func())
}

// Prober answers a single reachability check. The API client's Healthcheck
// satisfies this.
type Prober interface {
	Healthcheck(ctx context.Context) error
}

// notifier implements the subscription bookkeeping shared by both monitors.
type notifier struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func newNotifier(online bool) *notifier {
	return &notifier{online: online, subs: make(map[int]func(bool))}
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// set updates the flag and fires subscribers on a transition.
func (n *notifier) set(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online
	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// Probing polls a Prober on a fixed interval and derives the online flag from
// probe outcomes. It starts optimistic (online) until the first probe says
// otherwise.
type Probing struct {
	*notifier
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewProbing(prober Prober, interval time.Duration) *Probing {
	return &Probing{
		notifier: newNotifier(true),
		prober:   prober,
		interval: interval,
		timeout:  10 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the probe loop. Stop must be called to release it.
func (p *Probing) Start() {
	go p.loop()
}

func (p *Probing) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *Probing) loop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			err := p.prober.Healthcheck(ctx)
			cancel()
			p.set(err == nil)
		}
	}
}

// Manual is a Monitor whose flag is driven by the caller. The frontend wires
// browser-reported connectivity into Set; tests flip it directly.
type Manual struct {
	*notifier
}

func NewManual(online bool) *Manual {
	return &Manual{notifier: newNotifier(online)}
}

// Set updates the online flag, notifying subscribers on a transition.
func (m *Manual) Set(online bool) {
	m.set(online)
}
