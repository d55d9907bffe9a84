package handler

import (
	"context"
	"errors"
	"net/http"

	"live-bidding/internal/aggregator"
	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/biddingerrors"
	model "live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mock_bidding_service.go -package=handler live-bidding/services/bidding/handler BiddingServiceInterface

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, userID, auctionID string, amount decimal.Decimal) (model.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	AuctionStats(ctx context.Context, auctionID string) (aggregator.Stats, error)
	ListOpenAuctions(ctx context.Context) ([]bidding.AuctionSummary, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
}

// BidTracker is told about every admitted bid so the bidder's session can watch the auction
type BidTracker interface {
	TrackBid(ctx context.Context, bid model.Bid)
}

type BiddingHandler struct {
	service BiddingServiceInterface
	tracker BidTracker
}

func NewBiddingHandler(service BiddingServiceInterface, tracker BidTracker) *BiddingHandler {
	return &BiddingHandler{service: service, tracker: tracker}
}

// PlaceBidHandler handles POST /bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	userID := helpers.UserID(c)
	bid, err := h.service.PlaceBid(c.Request.Context(), userID, req.AuctionID, req.Amount)
	if err != nil {
		status, _ := helpers.RespondError(c, err)
		log := utils.Warn
		if status >= http.StatusInternalServerError {
			log = utils.Error
		}
		log("PlaceBidHandler: bid rejected", map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    userID,
			"amount":     req.Amount.String(),
			"status":     status,
			"error":      err.Error(),
		})
		return
	}

	if h.tracker != nil {
		h.tracker.TrackBid(c.Request.Context(), bid)
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"user_id":    userID,
		"amount":     bid.Amount.String(),
	})
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	auctions, err := h.service.ListOpenAuctions(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("ListAuctionsHandler: error listing auctions", map[string]any{"error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []bidding.AuctionSummary{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.RespondError(c, err)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, err)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
}

// GetHighestHandler handles GET /auctions/:auction_id/highest
func (h *BiddingHandler) GetHighestHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	stats, err := h.service.AuctionStats(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetHighestHandler: stats error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	resp := helpers.StatsResponse{AuctionID: auctionID, BidCount: stats.Count}
	if stats.HasBids {
		highest := stats.Highest
		resp.CurrentHighest = &highest
	}
	utils.JSONResponse(c, http.StatusOK, resp, "auction price retrieved successfully")
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.RespondError(c, err)
		utils.Warn("GetAuctionsByUserHandler: error retrieving auctions", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(auctions),
	})
}
