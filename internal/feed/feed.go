// Package feed fans admitted bids out to the subscribers of each auction.
//
// Every subscription owns an unbounded queue drained by its own goroutine, so a
// slow subscriber never blocks the publisher or other subscribers, and each
// subscriber observes the events of one auction in publish order.
package feed

import (
	"sync"

	model "live-bidding/internal/models"
)

// Feed is a per-auction publish/subscribe channel of BidAccepted events.
type Feed struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]*Subscription // key: auctionID
	closed bool
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{topics: make(map[string]map[uint64]*Subscription)}
}

// Subscribe registers a listener for one auction.
func (f *Feed) Subscribe(auctionID string) *Subscription {
	s := &Subscription{
		auctionID: auctionID,
		feed:      f,
		wake:      make(chan struct{}, 1),
		out:       make(chan model.BidAccepted),
		done:      make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.closeOnce.Do(func() { close(s.done) })
		close(s.out)
		return s
	}
	f.nextID++
	s.id = f.nextID
	subs, ok := f.topics[auctionID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		f.topics[auctionID] = subs
	}
	subs[s.id] = s
	f.mu.Unlock()

	go s.pump()
	return s
}

// Publish enqueues ev for every current subscriber of ev.AuctionID and returns
// how many subscribers it reached. Callers publish one auction's events in
// admission order.
func (f *Feed) Publish(ev model.BidAccepted) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	subs := f.topics[ev.AuctionID]
	for _, s := range subs {
		s.enqueue(ev)
	}
	return len(subs)
}

// Subscribers returns the number of live subscriptions for an auction.
func (f *Feed) Subscribers(auctionID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[auctionID])
}

// Close tears down every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	var all []*Subscription
	for _, subs := range f.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	f.topics = make(map[string]map[uint64]*Subscription)
	f.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.topics[s.auctionID]
	if !ok {
		return
	}
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(f.topics, s.auctionID)
	}
}

// Subscription receives the events of one auction.
type Subscription struct {
	id        uint64
	auctionID string
	feed      *Feed

	mu    sync.Mutex
	queue []model.BidAccepted

	wake      chan struct{}
	out       chan model.BidAccepted
	done      chan struct{}
	closeOnce sync.Once
}

// AuctionID returns the auction this subscription listens to.
func (s *Subscription) AuctionID() string { return s.auctionID }

// C returns the event channel. It is closed after Close.
func (s *Subscription) C() <-chan model.BidAccepted { return s.out }

// Close unsubscribes. Queued but undelivered events are dropped.
func (s *Subscription) Close() {
	s.feed.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(ev model.BidAccepted) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue[0] = model.BidAccepted{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
