package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	model "live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

var errWatchNotFound = errors.New("not watching this auction")

type WatchServiceInterface interface {
	Subscribe(ctx context.Context, userID, auctionID string) (model.WatchEntry, error)
	Unsubscribe(userID, auctionID string) bool
	StartSession(ctx context.Context, userID string) ([]model.WatchEntry, error)
	EndSession(userID string) int
	Watches(userID string) []model.WatchEntry
}

// Inbox streams the notifications addressed to a user
type Inbox interface {
	Listen(userID string) (<-chan model.Notification, func())
}

type WatchHandler struct {
	watches WatchServiceInterface
	inbox   Inbox
}

func NewWatchHandler(watches WatchServiceInterface, inbox Inbox) *WatchHandler {
	return &WatchHandler{watches: watches, inbox: inbox}
}

// StartSessionHandler handles POST /sessions
func (h *WatchHandler) StartSessionHandler(c *gin.Context) {
	userID := helpers.UserID(c)
	entries, err := h.watches.StartSession(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("StartSessionHandler: session start failed", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}
	if entries == nil {
		entries = []model.WatchEntry{}
	}
	utils.JSONResponse(c, http.StatusOK, entries, "session started")
}

// EndSessionHandler handles DELETE /sessions
func (h *WatchHandler) EndSessionHandler(c *gin.Context) {
	userID := helpers.UserID(c)
	stopped := h.watches.EndSession(userID)
	utils.JSONResponse(c, http.StatusOK, gin.H{"stopped": stopped}, "session ended")
}

// ListWatchesHandler handles GET /watch
func (h *WatchHandler) ListWatchesHandler(c *gin.Context) {
	entries := h.watches.Watches(helpers.UserID(c))
	if entries == nil {
		entries = []model.WatchEntry{}
	}
	utils.JSONResponse(c, http.StatusOK, entries, "watches retrieved successfully")
}

// SubscribeHandler handles POST /watch/:auction_id
func (h *WatchHandler) SubscribeHandler(c *gin.Context) {
	userID := helpers.UserID(c)
	auctionID := c.Param("auction_id")

	entry, err := h.watches.Subscribe(c.Request.Context(), userID, auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("SubscribeHandler: subscribe failed", map[string]any{"user_id": userID, "auction_id": auctionID, "error": err.Error()})
		return
	}
	utils.JSONResponse(c, http.StatusOK, entry, "watching auction")
}

// UnsubscribeHandler handles DELETE /watch/:auction_id
func (h *WatchHandler) UnsubscribeHandler(c *gin.Context) {
	userID := helpers.UserID(c)
	auctionID := c.Param("auction_id")

	if !h.watches.Unsubscribe(userID, auctionID) {
		utils.JSONError(c, http.StatusNotFound, errWatchNotFound, "watch not found")
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "stopped watching auction")
}

// EventsHandler handles GET /events as a server-sent event stream of the
// caller's notifications
func (h *WatchHandler) EventsHandler(c *gin.Context) {
	userID := helpers.UserID(c)
	ch, stop := h.inbox.Listen(userID)
	defer stop()

	utils.Info("EventsHandler: stream opened", map[string]any{"user_id": userID})
	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(n.Kind), n)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	utils.Info("EventsHandler: stream closed", map[string]any{"user_id": userID})
}
