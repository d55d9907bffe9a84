package server

import (
	"live-bidding/internal/clock"
	handler "live-bidding/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP layer routes to
type Deps struct {
	Bidding    handler.BiddingServiceInterface
	Tracker    handler.BidTracker
	Watches    handler.WatchServiceInterface
	Inbox      handler.Inbox
	Activator  handler.ActivatorInterface
	Clock      clock.Clock
	Tokens     TokenVerifier
	CronSecret string
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())                  // recover from panics
	router.Use(IdentityMiddleware(deps.Tokens)) // resolve bearer token, if any
	router.Use(RequestLoggerMiddleware)         // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Bidding, deps.Tracker)
	watchHandler := handler.NewWatchHandler(deps.Watches, deps.Inbox)
	activationHandler := handler.NewActivationHandler(deps.Activator, deps.Clock)

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.PlaceBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.GET("/:auction_id/highest", biddingHandler.GetHighestHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	authed := router.Group("", RequireUser)
	{
		authed.POST("/sessions", watchHandler.StartSessionHandler)
		authed.DELETE("/sessions", watchHandler.EndSessionHandler)
		authed.GET("/watch", watchHandler.ListWatchesHandler)
		authed.POST("/watch/:auction_id", watchHandler.SubscribeHandler)
		authed.DELETE("/watch/:auction_id", watchHandler.UnsubscribeHandler)
		authed.GET("/events", watchHandler.EventsHandler)
	}

	internal := router.Group("/internal", CronSecretMiddleware(deps.CronSecret))
	{
		internal.POST("/activate", activationHandler.ActivateHandler)
	}

	return router
}
