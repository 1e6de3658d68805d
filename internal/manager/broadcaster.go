package manager

import (
	"sync"

	"github.com/lunarchive/lunarchive/internal/domain"
)

// Subscription is one observer's private delivery queue. Snapshots
// accumulate without bound until the observer drains Updates, so a slow
// observer never blocks publication to others.
type Subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.Snapshot
	closed bool

	out    chan domain.Snapshot
	done   chan struct{}
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	s := &Subscription{
		out:    make(chan domain.Snapshot),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Updates delivers published snapshots in order. The channel is closed
// after Close.
func (s *Subscription) Updates() <-chan domain.Snapshot {
	return s.out
}

// Close detaches the subscription from the broadcaster. It is safe to
// call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
	s.cancel()
}

func (s *Subscription) push(snap domain.Snapshot) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, snap)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- snap:
		case <-s.done:
			return
		}
	}
}

// Broadcaster fans job snapshots out to global observers and to
// observers of a single job.
type Broadcaster struct {
	mu     sync.Mutex
	global map[*Subscription]struct{}
	detail map[string]map[*Subscription]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		global: make(map[*Subscription]struct{}),
		detail: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers an observer of every job update.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var s *Subscription
	s = newSubscription(func() { b.remove(s, "") })
	b.global[s] = struct{}{}
	return s
}

// SubscribeJob registers an observer of one job's updates.
func (b *Broadcaster) SubscribeJob(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var s *Subscription
	s = newSubscription(func() { b.remove(s, jobID) })
	if b.detail[jobID] == nil {
		b.detail[jobID] = make(map[*Subscription]struct{})
	}
	b.detail[jobID][s] = struct{}{}
	return s
}

func (b *Broadcaster) remove(s *Subscription, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if jobID == "" {
		delete(b.global, s)
		return
	}
	if set := b.detail[jobID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(b.detail, jobID)
		}
	}
}

// Publish enqueues the snapshot to every global subscriber and every
// subscriber of the snapshot's job. The subscriber set is copied before
// delivery so concurrent unsubscribes cannot race the iteration.
func (b *Broadcaster) Publish(snap domain.Snapshot) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.global)+len(b.detail[snap.ID]))
	for s := range b.global {
		subs = append(subs, s)
	}
	for s := range b.detail[snap.ID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(snap)
	}
}
