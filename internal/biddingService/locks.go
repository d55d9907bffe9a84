package bidding

import (
	"context"
	"sync"
)

// auctionLocks hands out one mutex per auction id. A lock is a channel so
// waiting for it can be abandoned when the caller's context ends.
type auctionLocks struct {
	mu    sync.Mutex
	locks map[string]*auctionLock
}

type auctionLock struct {
	ch   chan struct{}
	refs int
}

func newAuctionLocks() *auctionLocks {
	return &auctionLocks{locks: make(map[string]*auctionLock)}
}

// lock blocks until the auction's lock is held or ctx is done. The returned
// func releases it.
func (l *auctionLocks) lock(ctx context.Context, auctionID string) (func(), error) {
	l.mu.Lock()
	al, ok := l.locks[auctionID]
	if !ok {
		al = &auctionLock{ch: make(chan struct{}, 1)}
		l.locks[auctionID] = al
	}
	al.refs++
	l.mu.Unlock()

	select {
	case al.ch <- struct{}{}:
		return func() {
			<-al.ch
			l.release(auctionID, al)
		}, nil
	case <-ctx.Done():
		l.release(auctionID, al)
		return nil, ctx.Err()
	}
}

func (l *auctionLocks) release(auctionID string, al *auctionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	al.refs--
	if al.refs == 0 {
		delete(l.locks, auctionID)
	}
}
