package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scamwatch/internal/analytics"
	"scamwatch/internal/background"
	"scamwatch/internal/bot"
	"scamwatch/internal/config"
	"scamwatch/internal/confirm"
	"scamwatch/internal/evidence"
	"scamwatch/internal/export"
	"scamwatch/internal/modules/audit"
	"scamwatch/internal/modules/linkcheck"
	"scamwatch/internal/observability"
	"scamwatch/internal/reports"
	"scamwatch/internal/scanner"
	"scamwatch/internal/storage"
	"scamwatch/internal/vpn"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	sentryEnabled, err := observability.InitSentry(cfg.Sentry, cfg.Environment)
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	if sentryEnabled {
		defer observability.FlushSentry()
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Ping(startupCtx); err != nil {
		cancelStartup()
		logger.Fatal("database unreachable", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	applied, err := store.Migrate()
	if err != nil {
		cancelStartup()
		logger.Fatal("migrations failed", zap.Error(err))
	}
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver), zap.Int("migrations_applied", applied))

	files, err := openEvidenceStorage(startupCtx, cfg.Storage)
	cancelStartup()
	if err != nil {
		logger.Fatal("evidence storage init failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	metrics := observability.NewMetrics()
	runner := background.New(logger, metrics, cfg.Notifications.SideEffectTimeout)
	auditLogger := audit.NewLogger(store, runner, metrics, logger)

	reportService := reports.NewService(reports.Deps{
		Store:   store,
		Files:   files,
		Fetcher: reports.NewHTTPFetcher(cfg.Uploads.DownloadTimeout),
		Images:  evidence.NewProcessor(),
		Scanner: scanner.New(cfg.Scanner, logger),
		VPN:     vpn.New(cfg.VPN),
		Links:   linkcheck.New(cfg.LinkCheck),
		Audit:   auditLogger,
		Uploads: cfg.Uploads,
		Metrics: metrics,
		Logger:  logger,
	})

	botSvc, err := bot.New(cfg, logger, bot.Deps{
		Store:     store,
		Reports:   reportService,
		Exporter:  export.New(store, cfg.Export.Dir, logger),
		Analytics: analytics.New(store),
		Confirm:   confirm.NewRegistry(),
		Audit:     auditLogger,
		Runner:    runner,
		Metrics:   metrics,
	})
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("environment", cfg.Environment))

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := store.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unavailable"))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown requested", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)
	if err := runner.Shutdown(ctx); err != nil {
		logger.Warn("background tasks did not finish", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func openEvidenceStorage(ctx context.Context, cfg config.StorageConfig) (evidence.Storage, error) {
	if cfg.Driver == "s3" {
		return evidence.NewS3Storage(ctx, cfg.S3)
	}
	return evidence.NewLocalStorage(cfg.UploadDir)
}
