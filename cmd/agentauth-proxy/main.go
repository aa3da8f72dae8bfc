package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lsm/agentauth/internal/config"
	"github.com/lsm/agentauth/internal/observability"
	"github.com/lsm/agentauth/internal/proxy"
	"github.com/lsm/agentauth/internal/ratelimit"
	"github.com/lsm/agentauth/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dirFlag         = flag.String("dir", "", "Configuration directory. Defaults to $AGENTAUTH_DIR or ~/.agentauth.")
		portFlag        = flag.Int("port", 0, "Override listen port (e.g., 8090)")
		metricsPortFlag = flag.Int("metrics-port", 0, "Override metrics port")
		logLevelFlag    = flag.String("log-level", "", "Log level (debug, info, warn, error). Can also be set via AGENTAUTH_LOG_LEVEL env var.")
	)
	flag.Parse()

	level := observability.GetLogLevel(*logLevelFlag)
	logger := observability.NewLogger("agentauth-proxy", level)
	slog.SetDefault(logger)

	dir, err := config.Dir(*dirFlag)
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(filepath.Join(dir, config.SettingsFileName))
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if *portFlag > 0 {
		settings.ListenAddr = fmt.Sprintf(":%d", *portFlag)
	}
	if *metricsPortFlag > 0 {
		settings.MetricsAddr = fmt.Sprintf(":%d", *metricsPortFlag)
	}
	server, err := settings.Server()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdownTracing, err := tracing.Initialize(ctx, tracing.GetConfig("agentauth-proxy"), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	handler, err := proxy.NewHandler(proxy.Config{
		ServerURL:   server,
		RateLimiter: ratelimit.New(settings.RateLimit.RequestsPerSecond, settings.RateLimit.Burst),
		Metrics:     metrics,
		Tracer:      tracer,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	health := observability.NewHealthServer()
	reloader := &proxy.Reloader{
		Handler: handler,
		Health:  health,
		Metrics: metrics,
		Tracer:  tracer,
		Logger:  observability.NewTraceLogger(logger),
	}

	credsPath := settings.CredentialsPath(dir)
	watcher := config.NewWatcher(credsPath, logger)
	initial, err := watcher.Load()
	if err != nil && !errors.Is(err, config.ErrNotConfigured) {
		return fmt.Errorf("load credentials: %w", err)
	}
	if err := reloader.Apply(ctx, initial); err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	watcher.OnChange(func(f *config.CredentialFile) {
		_ = reloader.Apply(ctx, f)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	health.Register(metricsMux)

	metricsServer := &http.Server{
		Addr:              settings.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	proxyMux := http.NewServeMux()
	proxyMux.Handle(proxy.RoutePrefix, handler)

	proxyServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           otelhttp.NewHandler(proxyMux, "agentauth-proxy"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		if err := watcher.Watch(ctx.Done()); err != nil {
			errCh <- fmt.Errorf("credential watcher: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server starting", "addr", settings.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("proxy server starting", "addr", settings.ListenAddr, "server", settings.ServerURL)
		if err := proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("proxy server: %w", err)
		}
	}()

	logger.Info("agentauth-proxy started")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	health.SetNotReady("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := proxyServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("proxy server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
