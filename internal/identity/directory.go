package identity

import (
	"context"
	"errors"
	"sync"

	model "live-bidding/internal/models"
)

// ErrUnknownUser is returned when no profile is registered for a user id.
var ErrUnknownUser = errors.New("unknown user")

// Directory is an in-memory profile store.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewDirectory creates a directory seeded with users.
func NewDirectory(users ...model.User) *Directory {
	d := &Directory{users: make(map[string]model.User, len(users))}
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return d
}

// Put adds or replaces a profile.
func (d *Directory) Put(u model.User) {
	d.mu.Lock()
	d.users[u.UserID] = u
	d.mu.Unlock()
}

// Profile returns the profile for userID.
func (d *Directory) Profile(_ context.Context, userID string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return model.User{UserID: userID}, ErrUnknownUser
	}
	return u, nil
}
