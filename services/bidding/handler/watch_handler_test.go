package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/clock"
	model "live-bidding/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeWatches struct {
	mu      sync.Mutex
	watches map[string][]model.WatchEntry
}

func newFakeWatches() *fakeWatches {
	return &fakeWatches{watches: make(map[string][]model.WatchEntry)}
}

func (f *fakeWatches) Subscribe(_ context.Context, userID, auctionID string) (model.WatchEntry, error) {
	if auctionID == "missing" {
		return model.WatchEntry{}, fmt.Errorf("notifier: %w", biddingerrors.ErrAuctionNotFound)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := model.WatchEntry{UserID: userID, AuctionID: auctionID, LastKnownBid: decimal.NewFromInt(1000)}
	f.watches[userID] = append(f.watches[userID], e)
	return e, nil
}

func (f *fakeWatches) Unsubscribe(userID, auctionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.watches[userID] {
		if e.AuctionID == auctionID {
			f.watches[userID] = append(f.watches[userID][:i], f.watches[userID][i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeWatches) StartSession(_ context.Context, userID string) ([]model.WatchEntry, error) {
	if userID == "" {
		return nil, biddingerrors.ErrAuthRequired
	}
	return f.Watches(userID), nil
}

func (f *fakeWatches) EndSession(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.watches[userID])
	delete(f.watches, userID)
	return n
}

func (f *fakeWatches) Watches(userID string) []model.WatchEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.WatchEntry(nil), f.watches[userID]...)
}

// closeNotifyingRecorder lets gin's streaming loop run against a recorder.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool { return r.closed }

type fakeInbox struct{ ch chan model.Notification }

func (f *fakeInbox) Listen(string) (<-chan model.Notification, func()) {
	return f.ch, func() {}
}

func TestWatchHandler(t *testing.T) {
	watches := newFakeWatches()
	h := NewWatchHandler(watches, &fakeInbox{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(withUser("user1"))
	router.POST("/sessions", h.StartSessionHandler)
	router.DELETE("/sessions", h.EndSessionHandler)
	router.GET("/watch", h.ListWatchesHandler)
	router.POST("/watch/:auction_id", h.SubscribeHandler)
	router.DELETE("/watch/:auction_id", h.UnsubscribeHandler)

	steps := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedMsg    string
		validate       func(t *testing.T, resp map[string]any)
	}{
		{name: "start_empty_session", method: http.MethodPost, path: "/sessions", expectedStatus: http.StatusOK, expectedMsg: "session started",
			validate: func(t *testing.T, resp map[string]any) { require.Empty(t, resp["data"]) }},
		{name: "subscribe", method: http.MethodPost, path: "/watch/a1", expectedStatus: http.StatusOK, expectedMsg: "watching auction",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "1000", resp["data"].(map[string]any)["last_known_bid"])
			}},
		{name: "subscribe_unknown", method: http.MethodPost, path: "/watch/missing", expectedStatus: http.StatusNotFound, expectedMsg: "auction not found"},
		{name: "list", method: http.MethodGet, path: "/watch", expectedStatus: http.StatusOK, expectedMsg: "watches retrieved successfully",
			validate: func(t *testing.T, resp map[string]any) { require.Len(t, resp["data"], 1) }},
		{name: "unsubscribe", method: http.MethodDelete, path: "/watch/a1", expectedStatus: http.StatusOK, expectedMsg: "stopped watching auction"},
		{name: "unsubscribe_again", method: http.MethodDelete, path: "/watch/a1", expectedStatus: http.StatusNotFound, expectedMsg: "watch not found"},
		{name: "end_session", method: http.MethodDelete, path: "/sessions", expectedStatus: http.StatusOK, expectedMsg: "session ended",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, float64(0), resp["data"].(map[string]any)["stopped"])
			}},
	}

	// steps share state and run in order
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			req := httptest.NewRequest(st.method, st.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, st.expectedStatus, w.Code)
			resp := decodeBody(t, w)
			require.Equal(t, st.expectedMsg, resp["message"])
			if st.validate != nil {
				st.validate(t, resp)
			}
		})
	}
}

func TestEventsHandler_StreamsNotifications(t *testing.T) {
	inbox := &fakeInbox{ch: make(chan model.Notification, 1)}
	h := NewWatchHandler(newFakeWatches(), inbox)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(withUser("user1"))
	router.GET("/events", h.EventsHandler)

	inbox.ch <- model.Notification{Key: "outbid:user1:a1:b2", Kind: model.KindOutbid, Recipient: model.User{UserID: "user1"}}
	close(inbox.ch)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "event:outbid")
	require.Contains(t, w.Body.String(), "outbid:user1:a1:b2")
}

type fakeActivator struct {
	calledWith []time.Time
	ids        []string
	err        error
}

func (f *fakeActivator) ActivateDue(_ context.Context, now time.Time) ([]string, error) {
	f.calledWith = append(f.calledWith, now)
	return f.ids, f.err
}

func TestActivateHandler(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		activator      *fakeActivator
		expectedStatus int
		expectedNow    time.Time
	}{
		{name: "no_body", activator: &fakeActivator{ids: []string{"a3"}}, expectedStatus: http.StatusOK, expectedNow: now},
		{name: "past_now", body: `{"now":"2026-05-01T11:00:00Z"}`, activator: &fakeActivator{}, expectedStatus: http.StatusOK, expectedNow: now.Add(-time.Hour)},
		{name: "future_now_ignored", body: `{"now":"2026-05-01T13:00:00Z"}`, activator: &fakeActivator{}, expectedStatus: http.StatusOK, expectedNow: now},
		{name: "bad_body", body: `{"now":"yesterday"}`, activator: &fakeActivator{}, expectedStatus: http.StatusBadRequest},
		{name: "store_error", activator: &fakeActivator{err: errors.New("db down")}, expectedStatus: http.StatusInternalServerError, expectedNow: now},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewActivationHandler(tc.activator, clock.NewManual(now))
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.POST("/internal/activate", h.ActivateHandler)

			req := httptest.NewRequest(http.MethodPost, "/internal/activate", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedNow.IsZero() {
				require.Empty(t, tc.activator.calledWith)
				return
			}
			require.Equal(t, []time.Time{tc.expectedNow}, tc.activator.calledWith)
			if w.Code == http.StatusOK {
				resp := decodeBody(t, w)
				require.Equal(t, "activation sweep completed", resp["message"])
				require.NotNil(t, resp["data"].(map[string]any)["activated"])
			}
		})
	}
}
