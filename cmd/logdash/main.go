package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logdash/internal/config"
	"logdash/internal/fetch"
	"logdash/internal/history"
	"logdash/internal/rangesel"
	"logdash/internal/refresh"
	"logdash/internal/render"
	"logdash/internal/ui"
	"logdash/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logConfig(logger, cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "err", err)
		os.Exit(2)
	}

	client, err := fetch.NewClient(cfg.BackendURL, cfg.FetchTimeout)
	if err != nil {
		logger.Error("failed to create backend client", "err", err)
		os.Exit(2)
	}

	metrics := refresh.NewMetrics()
	rc := render.NewContext(loc, cfg.StaleGuard)
	ranges := rangesel.New(cfg.DefaultRange, time.Now())
	hist := history.NewRing(cfg.HistorySize)
	bus := ui.NewBus(64)
	defer bus.Shutdown()

	ctrl := refresh.NewController(client, ranges, rc, hist, bus, metrics, logger, refresh.Options{
		Interval:      cfg.RefreshInterval,
		LogLimit:      cfg.LogLimit,
		Chronological: cfg.TrafficOrder == config.TrafficChronological,
	})
	ranges.OnClose(ctrl.RangeClosed)

	assets, err := web.Assets()
	if err != nil {
		logger.Warn("failed to load dashboard assets", "err", err)
	}

	server := ui.NewServer(ui.Options{
		Render:         rc,
		Refresher:      ctrl,
		Ranges:         ranges,
		History:        hist,
		Bus:            bus,
		Metrics:        metrics,
		Assets:         assets,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting logdash", "listen", cfg.ListenAddr, "backend", cfg.BackendURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Run blocks until SIGINT/SIGTERM and waits for in-flight cycles.
	_ = ctrl.Run(ctx)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"listen_addr", cfg.ListenAddr,
		"backend_url", cfg.BackendURL,
		"config_file", cfg.ConfigFile,
		"refresh_interval", cfg.RefreshInterval,
		"log_limit", cfg.LogLimit,
		"default_range", cfg.DefaultRange,
		"fetch_timeout", cfg.FetchTimeout,
		"stale_guard", cfg.StaleGuard,
		"traffic_order", string(cfg.TrafficOrder),
		"timezone", cfg.Timezone,
		"history_size", cfg.HistorySize,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"log_level", cfg.LogLevel,
	)
}
