package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-bidding/internal/app"
	"live-bidding/internal/clock"
	"live-bidding/internal/config"
	"live-bidding/internal/limiter"
	"live-bidding/internal/migrate"
	model "live-bidding/internal/models"
	"live-bidding/internal/notify"
	"live-bidding/internal/repository/postgres"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()
	storage, closeStorage := openStorage(ctx, cfg, clk)
	defer closeStorage()

	a := app.Build(storage, clk, app.Options{
		BidTimeout:  cfg.BidTimeout,
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenTTL:    cfg.TokenTTL,
		CronSecret:  cfg.CronSecret,
		Channels:    []notify.Channel{{Name: "email", Dispatcher: notify.LogDispatcher{}}},
	})
	defer a.Close()
	seedUsers(a)

	go a.RunActivation(ctx, cfg.ActivationInterval)
	if ev, ok := storage.Limiter.(cooldownEvicter); ok {
		go evictCooldowns(ctx, ev, time.Minute)
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: a.Router,
	}

	srvErr := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.Addr(), "postgres": cfg.DatabaseURL != ""})
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server error", map[string]any{"error": err.Error()})
		}
	case <-ctx.Done():
		utils.Info("shutdown signal received, stopping server", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Error("server shutdown error", map[string]any{"error": err.Error()})
	}
	utils.Info("server stopped", nil)
}

type cooldownEvicter interface {
	Evict(ctx context.Context) (int64, error)
}

// evictCooldowns keeps the rate-limit table from growing with stale pairs
func evictCooldowns(ctx context.Context, ev cooldownEvicter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ev.Evict(ctx)
			if err != nil {
				utils.Warn("evict rate limit rows failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				utils.Debug("evicted rate limit rows", map[string]any{"rows": n})
			}
		}
	}
}

// openStorage selects Postgres when a DSN is configured and memory otherwise
func openStorage(ctx context.Context, cfg config.Config, clk clock.Clock) (app.Storage, func()) {
	if cfg.DatabaseURL == "" {
		storage, repo := app.MemoryStorage(clk, cfg.RateLimitWindow)
		if cfg.SeedSampleData {
			for _, a := range sampleAuctions(clk.Now()) {
				repo.AddAuction(a)
			}
		}
		return storage, func() {}
	}

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := migrate.Up(startupCtx, cfg.DatabaseURL); err != nil {
		utils.Fatal("apply migrations", map[string]any{"error": err.Error()})
	}
	db, err := postgres.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		utils.Fatal("connect to db", map[string]any{"error": err.Error()})
	}

	repo := postgres.NewAuctionRepo(db)
	if cfg.SeedSampleData {
		for _, a := range sampleAuctions(clk.Now()) {
			if err := repo.UpsertAuction(startupCtx, a); err != nil {
				utils.Warn("seed auction failed", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
			}
		}
	}

	return app.Storage{
		Repo:        repo,
		Limiter:     limiter.NewPG(db.Pool, clk, cfg.RateLimitWindow),
		DispatchLog: postgres.NewDispatchLog(db),
	}, db.Close
}

// sampleAuctions returns a few listings for local development
func sampleAuctions(now time.Time) []model.Auction {
	return []model.Auction{
		{
			AuctionID: "auction1", Title: "Vintage camera", Category: "electronics",
			StartingPrice: decimal.NewFromInt(1000), MinimumIncrement: decimal.NewFromInt(50),
			StartTime: now.Add(-time.Hour), EndTime: now.Add(7 * 24 * time.Hour),
			Status: model.AuctionActive, ApprovalStatus: model.ApprovalApproved, SubmitterID: "seller1",
		},
		{
			AuctionID: "auction2", Title: "Oak dining table", Category: "furniture",
			StartingPrice: decimal.NewFromInt(200), MinimumIncrement: decimal.NewFromInt(10),
			StartTime: now.Add(-time.Hour), EndTime: now.Add(3 * 24 * time.Hour),
			Status: model.AuctionActive, ApprovalStatus: model.ApprovalApproved, SubmitterID: "seller2",
		},
		{
			AuctionID: "auction3", Title: "First edition novel", Category: "books",
			StartingPrice: decimal.NewFromInt(150), MinimumIncrement: decimal.NewFromInt(5),
			StartTime: now.Add(2 * time.Minute), EndTime: now.Add(5 * 24 * time.Hour),
			Status: model.AuctionPending, ApprovalStatus: model.ApprovalApproved, SubmitterID: "seller1",
		},
	}
}

// seedUsers registers development profiles used to address notifications
func seedUsers(a *app.App) {
	for _, u := range []model.User{
		{UserID: "seller1", Email: "seller1@example.com", DisplayName: "Seller One"},
		{UserID: "seller2", Email: "seller2@example.com", DisplayName: "Seller Two"},
		{UserID: "user1", Email: "user1@example.com", DisplayName: "User One"},
		{UserID: "user2", Email: "user2@example.com", DisplayName: "User Two"},
	} {
		a.Directory.Put(u)
	}
}
