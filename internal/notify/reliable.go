package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"live-bidding/internal/clock"
	model "live-bidding/internal/models"
	"live-bidding/utils"

	"github.com/sethvargo/go-retry"
)

// DispatchLog remembers which notification keys were already dispatched.
type DispatchLog interface {
	// Claim records the key and reports whether the caller is the first to do so.
	Claim(ctx context.Context, n model.Notification, at time.Time) (bool, error)
	// Release forgets a key after a dispatch finally failed.
	Release(ctx context.Context, key string) error
}

// MemoryLog is an in-process DispatchLog.
type MemoryLog struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryLog creates an empty in-memory dispatch log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{keys: make(map[string]time.Time)}
}

func (l *MemoryLog) Claim(_ context.Context, n model.Notification, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[n.Key]; ok {
		return false, nil
	}
	l.keys[n.Key] = at
	return true, nil
}

func (l *MemoryLog) Release(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.keys, key)
	l.mu.Unlock()
	return nil
}

const (
	defaultRetryBase = 100 * time.Millisecond
	defaultRetries   = 3
)

// Reliable dispatches each notification key at most once, retrying transient
// failures with exponential backoff.
type Reliable struct {
	next    Dispatcher
	log     DispatchLog
	clock   clock.Clock
	base    time.Duration
	retries uint64
}

// ReliableOption configures Reliable.
type ReliableOption func(*Reliable)

// WithBackoff overrides the base delay and the number of retries.
func WithBackoff(base time.Duration, retries uint64) ReliableOption {
	return func(r *Reliable) {
		if base > 0 {
			r.base = base
		}
		r.retries = retries
	}
}

// NewReliable wraps next with deduplication and retries.
func NewReliable(next Dispatcher, log DispatchLog, clk clock.Clock, opts ...ReliableOption) *Reliable {
	r := &Reliable{next: next, log: log, clock: clk, base: defaultRetryBase, retries: defaultRetries}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send dispatches n unless its key was already claimed. sent is false for
// duplicates. When every attempt fails the claim is released so the event can
// be retried independently, and the error is returned.
func (r *Reliable) Send(ctx context.Context, n model.Notification) (sent bool, err error) {
	if n.Key == "" {
		return false, fmt.Errorf("notify: notification %s has no key", n.ID)
	}
	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.clock.Now()
	}

	first, err := r.log.Claim(ctx, n, r.clock.Now())
	if err != nil {
		return false, fmt.Errorf("notify: claim %s: %w", n.Key, err)
	}
	if !first {
		utils.Debug("duplicate notification suppressed", map[string]any{"key": n.Key})
		return false, nil
	}

	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.next.Dispatch(ctx, n); err != nil {
			utils.Warn("notification dispatch attempt failed", map[string]any{"key": n.Key, "error": err.Error()})
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if relErr := r.log.Release(context.WithoutCancel(ctx), n.Key); relErr != nil {
			utils.Error("release dispatch claim failed", map[string]any{"key": n.Key, "error": relErr.Error()})
		}
		return false, fmt.Errorf("notify: dispatch %s: %w", n.Key, err)
	}
	return true, nil
}

// Channel is one named outbound path, such as the in-app toast or email.
type Channel struct {
	Name       string
	Dispatcher Dispatcher
}

type reliableChannel struct {
	name string
	send *Reliable
}

// Channels delivers a notification once on every channel. Each channel claims
// "<key>:<name>" and retries on its own, so a retry on one channel never
// repeats delivery on another.
type Channels struct {
	clock    clock.Clock
	channels []reliableChannel
}

// NewChannels wraps every channel in its own Reliable over log.
func NewChannels(log DispatchLog, clk clock.Clock, channels []Channel, opts ...ReliableOption) *Channels {
	c := &Channels{clock: clk}
	for _, ch := range channels {
		c.channels = append(c.channels, reliableChannel{
			name: ch.Name,
			send: NewReliable(ch.Dispatcher, log, clk, opts...),
		})
	}
	return c
}

// Send dispatches n on every channel. sent reports whether any channel
// delivered it now; errors of failed channels are joined.
func (c *Channels) Send(ctx context.Context, n model.Notification) (sent bool, err error) {
	if n.Key == "" {
		return false, fmt.Errorf("notify: notification %s has no key", n.ID)
	}
	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = c.clock.Now()
	}

	key := n.Key
	var errs []error
	for _, ch := range c.channels {
		n.Key = key + ":" + ch.name
		ok, err := ch.send.Send(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.name, err))
			continue
		}
		sent = sent || ok
	}
	return sent, errors.Join(errs...)
}
