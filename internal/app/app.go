// Package app assembles the bidding core and its HTTP surface from a storage backend.
package app

import (
	"context"
	"time"

	"live-bidding/internal/aggregator"
	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/clock"
	"live-bidding/internal/feed"
	"live-bidding/internal/identity"
	"live-bidding/internal/limiter"
	"live-bidding/internal/notifier"
	"live-bidding/internal/notify"
	"live-bidding/internal/repository"
	"live-bidding/internal/scheduler"
	"live-bidding/internal/server"

	"github.com/gin-gonic/gin"
)

// Storage is the persistence backend of the core.
type Storage struct {
	Repo        repository.AuctionDB
	Limiter     limiter.Limiter
	DispatchLog notify.DispatchLog
}

// MemoryStorage returns the in-process backend.
func MemoryStorage(clk clock.Clock, cooldown time.Duration) (Storage, *repository.MemoryRepo) {
	repo := repository.NewMemoryRepo()
	return Storage{
		Repo:        repo,
		Limiter:     limiter.NewMemory(clk, cooldown),
		DispatchLog: notify.NewMemoryLog(),
	}, repo
}

// Options tune the assembled application.
type Options struct {
	BidTimeout  time.Duration
	JWTSecret   []byte
	TokenTTL    time.Duration
	CronSecret  string
	Channels    []notify.Channel // outbound channels besides the in-app toast
	RetryBase   time.Duration
}

// App is the assembled core.
type App struct {
	Router    *gin.Engine
	Bidding   *bidding.BiddingService
	Notifier  *notifier.Notifier
	Activator *scheduler.Activator
	Inbox     *notify.Inbox
	Feed      *feed.Feed
	Tokens    *identity.Tokens
	Directory *identity.Directory
	Clock     clock.Clock
}

// Build wires the services over storage.
func Build(storage Storage, clk clock.Clock, opts Options) *App {
	f := feed.New()
	agg := aggregator.New(storage.Repo)
	svc := bidding.NewBiddingService(storage.Repo, storage.Limiter, agg, f, clk, bidding.WithBidTimeout(opts.BidTimeout))

	inbox := notify.NewInbox()
	channels := append([]notify.Channel{{Name: "toast", Dispatcher: inbox}}, opts.Channels...)
	sender := notify.NewChannels(storage.DispatchLog, clk, channels, notify.WithBackoff(opts.RetryBase, 3))

	dir := identity.NewDirectory()
	n := notifier.New(storage.Repo, f, sender, dir)
	act := scheduler.NewActivator(storage.Repo, sender, dir, clk)
	tokens := identity.NewTokens(opts.JWTSecret, opts.TokenTTL)

	router := server.SetupRouter(server.Deps{
		Bidding:    svc,
		Tracker:    n,
		Watches:    n,
		Inbox:      inbox,
		Activator:  act,
		Clock:      clk,
		Tokens:     tokens,
		CronSecret: opts.CronSecret,
	})

	return &App{
		Router:    router,
		Bidding:   svc,
		Notifier:  n,
		Activator: act,
		Inbox:     inbox,
		Feed:      f,
		Tokens:    tokens,
		Directory: dir,
		Clock:     clk,
	}
}

// RunActivation sweeps on interval until ctx is done. A non-positive interval disables it.
func (a *App) RunActivation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.Activator.Run(ctx, interval)
}

// Close stops every watch and subscription.
func (a *App) Close() {
	a.Notifier.Close()
	a.Feed.Close()
}
