package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gtmarket/polyscope/api"
	"github.com/gtmarket/polyscope/internal/config"
	"github.com/gtmarket/polyscope/internal/logging"
	"github.com/gtmarket/polyscope/pkg/feed"
	"github.com/gtmarket/polyscope/pkg/httpclient"
	"github.com/gtmarket/polyscope/pkg/polymarket"
	"github.com/gtmarket/polyscope/pkg/ratelimit"
	"github.com/gtmarket/polyscope/pkg/store"
	"github.com/gtmarket/polyscope/pkg/tracker"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "polyscope [slug...]",
		Short: "Polymarket live market data acquisition",
		Long:  `Tracks prediction markets by slug, keeping REST snapshots and the websocket feed merged into one live view`,
		Run:   runTracker,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runTracker(cmd *cobra.Command, args []string) {
	// Environment overrides may live in a local .env during development
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.New(limiterRules(cfg.RateLimit), cfg.RateLimit.QPS, cfg.RateLimit.Burst)
	httpClient := httpclient.New(limiter, logger,
		httpclient.WithBackoff(
			time.Duration(cfg.HTTP.BackoffBaseMS)*time.Millisecond,
			time.Duration(cfg.HTTP.BackoffCapSeconds)*time.Second,
		))

	client := polymarket.NewClient(polymarket.Endpoints{
		GammaBase:   cfg.Endpoints.GammaBase,
		ClobBase:    cfg.Endpoints.ClobBase,
		DataAPIBase: cfg.Endpoints.DataAPIBase,
	}, httpClient, logger)

	marketStore := store.New(client, logger)
	marketFeed := feed.New(cfg.Endpoints.WSURL, logger,
		feed.WithBackoff(cfg.WebSocket.BackoffBase(), cfg.WebSocket.BackoffCap()))

	trk := tracker.New(client, marketStore, marketFeed,
		time.Duration(cfg.Tracker.RefreshIntervalSeconds)*time.Second, logger)

	slugs := append(append([]string{}, cfg.Tracker.Slugs...), args...)
	if len(slugs) == 0 {
		logger.Warn("No market slugs configured; pass slugs as arguments or set tracker.slugs")
	}
	if err := trk.Track(ctx, slugs...); err != nil {
		logger.WithError(err).Error("Some markets failed to resolve")
	}

	trk.Start(ctx)

	apiServer := api.NewServer(marketStore, marketFeed, logger,
		fmt.Sprintf("%d", cfg.Server.Port),
		time.Duration(cfg.Staleness.RESTMaxAgeSeconds)*time.Second,
		time.Duration(cfg.Staleness.WSMaxAgeSeconds)*time.Second,
	)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Polyscope is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	trk.Stop()
	cancel()

	logger.Info("Polyscope stopped")
}

func limiterRules(cfg config.RateLimitConfig) []ratelimit.Rule {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	rules := make([]ratelimit.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, ratelimit.Rule{
			Host:       r.Host,
			PathPrefix: r.PathPrefix,
			Capacity:   r.Capacity,
			Window:     window,
		})
	}
	return rules
}
