// trackerwatch is a headless Tracker client: it keeps the household event
// channel open, mirrors server changes into the local cache, and logs
// budget and goal projections as fresh data arrives. With --relay it runs
// a local event relay instead, for development without a backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trackerhq/tracker-core/internal/api"
	"github.com/trackerhq/tracker-core/internal/cache"
	"github.com/trackerhq/tracker-core/internal/config"
	"github.com/trackerhq/tracker-core/internal/credential"
	"github.com/trackerhq/tracker-core/internal/database"
	"github.com/trackerhq/tracker-core/internal/finance"
	"github.com/trackerhq/tracker-core/internal/logging"
	"github.com/trackerhq/tracker-core/internal/realtime"
	"github.com/trackerhq/tracker-core/internal/relay"
)

func main() {
	relayMode := flag.Bool("relay", false, "run a local event relay server instead of the watcher")
	relayAddr := flag.String("addr", ":8000", "relay listen address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel)

	if *relayMode {
		runRelay(*relayAddr, cfg, logger)
		return
	}
	runWatch(cfg, logger)
}

func runRelay(addr string, cfg config.Config, logger *slog.Logger) {
	hub := relay.NewHub(logger.With("component", "relay"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ws/{household_id}", relay.HandleSync(hub, cfg.RelaySecret, logger.With("component", "relay")))

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     mux,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		fmt.Printf("Tracker relay listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("relay error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func runWatch(cfg config.Config, logger *slog.Logger) {
	session := credential.NewSession(cfg.Token)
	if cfg.Token == "" && cfg.TokenFile != "" {
		token, err := credential.LoadToken(cfg.TokenFile, cfg.TokenPassphrase)
		if err != nil {
			log.Fatalf("load token file: %v", err)
		}
		session.SetToken(token)
	}

	if cfg.HouseholdID == "" {
		log.Fatal("TRACKER_HOUSEHOLD_ID is required")
	}

	db, err := database.Open(cfg.CacheDBPath)
	if err != nil {
		log.Fatalf("open cache db: %v", err)
	}
	defer db.Close()

	apiClient := api.NewClient(cfg.APIBaseURL, session, logger.With("component", "api"))
	store := cache.NewStore(db, apiClient.Fetcher(), logger.With("component", "cache"))
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Load(ctx); err != nil {
		log.Fatalf("hydrate cache: %v", err)
	}

	supervisor := realtime.NewSupervisor(realtime.Config{
		BaseURL:        cfg.APIBaseURL,
		SyncPath:       cfg.SyncPath,
		BackoffInitial: cfg.BackoffInitial,
		BackoffCap:     cfg.BackoffCap,
		JitterPercent:  cfg.JitterPercent,
	}, session, store, func(st realtime.State) {
		logger.Info("connection state", "state", string(st))
	}, logger.With("component", "realtime"))

	supervisor.SetHousehold(ctx, cfg.HouseholdID)
	defer supervisor.Teardown()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	printProjections(ctx, store, logger)
	for {
		select {
		case <-ticker.C:
			printProjections(ctx, store, logger)
		case <-quit:
			fmt.Println("\nShutting down...")
			return
		}
	}
}

// printProjections reads the cached budget and goal snapshots and logs the
// derived pacing and completion numbers.
func printProjections(ctx context.Context, store *cache.Store, logger *slog.Logger) {
	now := time.Now()
	day := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	raw, err := store.Get(ctx, api.BudgetKey(now.Year(), int(now.Month())))
	if err != nil {
		logger.Warn("budget unavailable", "error", err)
	} else {
		var sum api.BudgetSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			logger.Warn("decode budget summary", "error", err)
		} else {
			pace := finance.Pace(sum.TotalSpent, sum.BudgetLimit, day, daysInMonth)
			used := finance.PercentUsed(sum.TotalSpent, sum.BudgetLimit)
			attrs := []any{
				"spent", sum.TotalSpent.StringFixed(2),
				"limit", sum.BudgetLimit.StringFixed(2),
				"percent_used", fmt.Sprintf("%.1f", used.Percent),
				"daily_pace", pace.DailyPace.StringFixed(2),
				"projected", pace.Projected.StringFixed(2),
				"on_track", pace.OnTrack,
			}
			if daily, ok := finance.RemainingDailyBudget(sum.BudgetLimit, sum.TotalSpent, daysInMonth-day); ok {
				attrs = append(attrs, "remaining_daily", daily.StringFixed(2))
			}
			if used.OverBy.IsPositive() {
				attrs = append(attrs, "over_by", used.OverBy.StringFixed(2))
			}
			logger.Info("budget", attrs...)
		}
	}

	raw, err = store.Get(ctx, cache.NewKey("goals"))
	if err != nil {
		logger.Warn("goals unavailable", "error", err)
		return
	}
	var goals []api.Goal
	if err := json.Unmarshal(raw, &goals); err != nil {
		logger.Warn("decode goals", "error", err)
		return
	}
	for _, g := range goals {
		months, ok := finance.GoalProjection(g.SavedAmount, g.TargetAmount, g.MonthlyContribution)
		monthsStr := "—"
		if ok {
			monthsStr = fmt.Sprintf("%d", months)
		}
		logger.Info("goal", "name", g.Name,
			"saved", g.SavedAmount.StringFixed(2),
			"target", g.TargetAmount.StringFixed(2),
			"months_to_goal", monthsStr)
	}
}
