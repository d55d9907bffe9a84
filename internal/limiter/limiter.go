// Package limiter gates bid attempts per (user, auction) pair with a fixed cooldown.
package limiter

import (
	"context"
	"sync"
	"time"

	"live-bidding/internal/clock"
)

// DefaultCooldown is the minimum spacing between admitted attempts of one pair.
const DefaultCooldown = 5 * time.Second

// Limiter controls bid attempts.
type Limiter interface {
	// TryAcquire reports whether the pair may attempt a bid now. On success the
	// attempt time is recorded; on rejection nothing changes and the remaining
	// cooldown is returned.
	TryAcquire(ctx context.Context, userID, auctionID string) (bool, time.Duration, error)
}

type pairKey struct {
	userID    string
	auctionID string
}

// Memory is an in-process limiter. The check and the update happen under one
// lock, so two parallel attempts of the same pair never both pass.
type Memory struct {
	mu        sync.Mutex
	clock     clock.Clock
	cooldown  time.Duration
	last      map[pairKey]time.Time
	lastSweep time.Time
}

// NewMemory constructs an in-memory limiter. A non-positive cooldown falls back to DefaultCooldown.
func NewMemory(clk clock.Clock, cooldown time.Duration) *Memory {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Memory{
		clock:    clk,
		cooldown: cooldown,
		last:     make(map[pairKey]time.Time),
	}
}

func (m *Memory) TryAcquire(_ context.Context, userID, auctionID string) (bool, time.Duration, error) {
	now := m.clock.Now()
	key := pairKey{userID: userID, auctionID: auctionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < m.cooldown {
			return false, m.cooldown - elapsed, nil
		}
	}
	m.last[key] = now

	if now.Sub(m.lastSweep) >= m.cooldown {
		m.evict(now)
	}
	return true, 0, nil
}

// Len returns the number of tracked pairs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}

// evict drops pairs whose cooldown has elapsed; they carry no information anymore.
func (m *Memory) evict(now time.Time) {
	for k, t := range m.last {
		if now.Sub(t) >= m.cooldown {
			delete(m.last, k)
		}
	}
	m.lastSweep = now
}
