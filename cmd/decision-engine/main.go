// Command decision-engine runs the scheduler HTTP API: it evaluates credit
// ledgers, carbon forecasts, and scaling policy against the strategies in
// rotation and publishes the resulting ScheduleDecision per (namespace,name)
// session.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/greenroute/carbonsched/internal/config"
	"github.com/greenroute/carbonsched/internal/discovery"
	"github.com/greenroute/carbonsched/internal/engine"
	"github.com/greenroute/carbonsched/internal/metrics"
	"github.com/greenroute/carbonsched/pkg/models"
)

func main() {
	logger := newLogger()

	baseCfg := config.FromEnv()
	m := metrics.New()
	registry := engine.NewRegistry(m, logger)
	defaultSession := registry.EnsureDefault(baseCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if overlayPath := os.Getenv("SCHEDULER_CONFIG_OVERLAY"); overlayPath != "" {
		overlay, err := config.NewOverlay(overlayPath)
		if err != nil {
			logger.Error("config overlay disabled", "error", err)
		} else {
			defer overlay.Close()
			if overrides, err := overlay.Load(); err == nil && len(overrides) > 0 {
				applyOverlay(registry, baseCfg, overrides, logger)
			}
			changes, errs := overlay.Watch(ctx)
			go watchOverlay(registry, baseCfg, changes, errs, logger)
		}
	}

	if filePath := os.Getenv("SCHEDULER_STRATEGIES_FILE"); filePath != "" {
		fallback := discovery.LoadFromEnv()
		interval := time.Duration(baseCfg.DiscoveryInterval) * time.Second
		poller := discovery.NewFilePoller(filePath, interval, defaultSession.Registry(), fallback)
		go poller.Run(ctx)
	}

	server := engine.NewServer(registry, baseCfg, logger)

	httpAddr := ":" + envOr("PORT", "8080")
	httpSrv := &http.Server{Addr: httpAddr, Handler: server.Router()}

	metricsAddr := ":" + envOr("METRICS_PORT", "9090")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("decision engine listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("signal received; shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	registry.Shutdown()
}

// applyOverlay merges overrides over baseCfg and pushes the result to the
// default session, matching what PUT /config/{ns}/{name} would do.
func applyOverlay(registry *engine.Registry, baseCfg models.SchedulerConfig, overrides map[string]any, logger *slog.Logger) {
	cfg := baseCfg
	if err := cfg.ApplyOverrides(overrides); err != nil {
		logger.Warn("config overlay rejected", "error", err)
		return
	}
	registry.Configure(engine.DefaultNamespace, engine.DefaultName, cfg, nil, true)
	logger.Info("config overlay applied")
}

func watchOverlay(registry *engine.Registry, baseCfg models.SchedulerConfig, changes <-chan map[string]any, errs <-chan error, logger *slog.Logger) {
	for {
		select {
		case overrides, ok := <-changes:
			if !ok {
				return
			}
			applyOverlay(registry, baseCfg, overrides, logger)
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("config overlay error", "error", err)
		}
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch envOr("LOGLEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
