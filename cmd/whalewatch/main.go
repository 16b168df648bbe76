package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/liamashdown/whalewatch/internal/alerts"
	"github.com/liamashdown/whalewatch/internal/config"
	"github.com/liamashdown/whalewatch/internal/dexscreener"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/liamashdown/whalewatch/internal/poller"
	"github.com/liamashdown/whalewatch/internal/stream"
	"github.com/liamashdown/whalewatch/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting whalewatch service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	if cfg.HealthPort > 0 {
		go startHTTPServer(ctx, cfg.HealthPort, &ready, log)
	}

	// Load watchlist. Without one the process stays up but idle.
	watchlist, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		if errors.Is(err, config.ErrNoWatchlist) {
			log.WithField("path", cfg.WatchlistPath).Error("Watchlist file not found, no listeners started")
		} else {
			log.WithError(err).WithField("path", cfg.WatchlistPath).Error("Failed to load watchlist, no listeners started")
		}
		<-ctx.Done()
		fmt.Println("Watchtower stopped.")
		return
	}

	for _, rejected := range watchlist.Rejected {
		log.WithError(rejected).Warn("Skipping watchlist entry")
	}
	cfg.ApplyWatchlist(watchlist)

	log.WithFields(logrus.Fields{
		"environment":       cfg.Environment,
		"watchlist":         cfg.WatchlistPath,
		"entries":           len(watchlist.Entries),
		"default_threshold": cfg.DefaultThreshold.String(),
		"notify_mode":       cfg.EffectiveNotifyMode(),
		"poll_interval":     cfg.PollInterval.String(),
	}).Info("Configuration loaded")

	// Initialize alert delivery
	mode, deliverer := createDeliverer(cfg, log)

	log.WithField("notify_mode", mode).Info("Alert deliverer initialized")

	tasks := buildTasks(cfg, watchlist, mode, deliverer, log)
	ready.Store(true)

	supervisor.Run(ctx, log, tasks...)

	// Every task returned early (e.g. empty watchlist); idle until shutdown.
	<-ctx.Done()
	log.Info("Graceful shutdown complete")
	fmt.Println("Watchtower stopped.")
}

func createDeliverer(cfg *config.Config, log *logrus.Logger) (config.NotifyMode, alerts.Deliverer) {
	mode := cfg.EffectiveNotifyMode()
	if mode != cfg.NotifyMode {
		log.WithField("notify_mode", cfg.NotifyMode).Warn("Notification credentials not set, printing alerts to console")
	}

	switch mode {
	case config.NotifyTelegram:
		sender, err := alerts.NewTelegramSender(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.WithError(err).Error("Failed to initialize Telegram, printing alerts to console")
			return config.NotifyConsole, alerts.NewConsoleSender(os.Stdout)
		}
		return mode, sender

	case config.NotifyDiscord:
		return mode, alerts.NewDiscordSender(cfg.DiscordWebhookURL)

	default:
		return config.NotifyConsole, alerts.NewConsoleSender(os.Stdout)
	}
}

// buildTasks creates one Coinbase listener, one Binance listener per
// region, and the DexScreener poller. Each gets its own alert queue and
// rate limit so slow delivery never holds up ingestion or other sources.
func buildTasks(cfg *config.Config, w *config.Watchlist, mode config.NotifyMode, deliverer alerts.Deliverer, log *logrus.Logger) []supervisor.Task {
	backoff := stream.WithBackoff(cfg.ReconnectCloseDelay, cfg.ReconnectErrorDelay)
	var tasks []supervisor.Task

	queueFor := func(name string) *alerts.Queue {
		dispatcher := alerts.NewDispatcher(deliverer, string(mode), cfg.NotifyRPS, log)
		q := alerts.NewQueue(name, dispatcher, alerts.DefaultQueueSize, log)
		tasks = append(tasks, q)
		return q
	}

	coinbase := w.BySource(market.SourceCoinbase)
	tasks = append(tasks, stream.New("coinbase",
		stream.NewCoinbase(cfg.CoinbaseWSURL, coinbase),
		w.Thresholds(market.SourceCoinbase, cfg.DefaultThreshold),
		queueFor("coinbase"), log, backoff))

	binanceThresholds := w.Thresholds(market.SourceBinance, cfg.DefaultThreshold)
	byRegion := lo.GroupBy(w.BySource(market.SourceBinance), func(e config.WatchlistEntry) string {
		return e.Region
	})
	regions := lo.Keys(byRegion)
	slices.Sort(regions)
	for _, region := range regions {
		name := "binance-" + region
		tasks = append(tasks, stream.New(name,
			stream.NewBinance(cfg.BinanceWSURL, region, byRegion[region]),
			binanceThresholds, queueFor(name), log, backoff))
	}

	dex := w.BySource(market.SourceDexScreener)
	tasks = append(tasks, poller.New(
		dexscreener.NewClient(cfg.DexAPIBaseURL, cfg.DexAPIRPS),
		dex,
		w.Thresholds(market.SourceDexScreener, cfg.DefaultThreshold),
		queueFor(market.SourceDexScreener), cfg.PollInterval, log))

	return tasks
}

func startHTTPServer(ctx context.Context, port int, ready *atomic.Bool, log *logrus.Logger) {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			metrics.RecordHealthCheck(false)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"starting"}`)
			return
		}
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("port", port).Info("Starting HTTP server (health + metrics)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
	}
}
