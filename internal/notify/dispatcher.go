// Package notify hands notification requests to the outbound channels and
// guarantees at-most-once dispatch per triggering event.
package notify

import (
	"context"
	"sync"

	model "live-bidding/internal/models"
	"live-bidding/utils"
)

// Dispatcher renders and sends one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// LogDispatcher stands in for the email sender: it records the request in the log.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, n model.Notification) error {
	utils.Info("notification dispatched", map[string]any{
		"notification_id": n.ID,
		"key":             n.Key,
		"kind":            string(n.Kind),
		"recipient_id":    n.Recipient.UserID,
		"recipient_email": n.Recipient.Email,
	})
	return nil
}

// inboxBuffer is the number of undelivered toasts kept per listener.
const inboxBuffer = 32

// Inbox delivers notifications to the live sessions of their recipient
// (in-app toasts). Listeners that fall behind lose toasts rather than block
// dispatch; the email path still carries them.
type Inbox struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string]map[uint64]chan model.Notification // key: userID
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{listeners: make(map[string]map[uint64]chan model.Notification)}
}

// Listen registers a listener for userID. Call the returned func to stop.
func (i *Inbox) Listen(userID string) (<-chan model.Notification, func()) {
	ch := make(chan model.Notification, inboxBuffer)

	i.mu.Lock()
	i.nextID++
	id := i.nextID
	if i.listeners[userID] == nil {
		i.listeners[userID] = make(map[uint64]chan model.Notification)
	}
	i.listeners[userID][id] = ch
	i.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			i.mu.Lock()
			defer i.mu.Unlock()
			delete(i.listeners[userID], id)
			if len(i.listeners[userID]) == 0 {
				delete(i.listeners, userID)
			}
			close(ch)
		})
	}
}

func (i *Inbox) Dispatch(_ context.Context, n model.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, ch := range i.listeners[n.Recipient.UserID] {
		select {
		case ch <- n:
		default:
			utils.Warn("inbox listener full, toast dropped", map[string]any{
				"recipient_id": n.Recipient.UserID,
				"key":          n.Key,
			})
		}
	}
	return nil
}
