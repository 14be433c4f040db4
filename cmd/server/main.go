package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/golab-ledger/internal/application"
	"github.com/JonMunkholm/golab-ledger/internal/config"
	"github.com/JonMunkholm/golab-ledger/internal/core"
	"github.com/JonMunkholm/golab-ledger/internal/logging"
	"github.com/JonMunkholm/golab-ledger/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"first_batch_size", cfg.Import.FirstBatchSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"lock_enabled", cfg.Lock.Enabled(),
	)

	ctx := context.Background()
	app, err := application.Open(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start ledger service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	rate := 0
	if cfg.Rate.Enabled {
		rate = cfg.Rate.RequestsPerMinute
	}
	server := web.NewServer(app.Service, web.Options{
		MaxFileSize:    cfg.Import.MaxFileSize,
		RequestTimeout: cfg.Server.RequestTimeout,
		ImportTimeout:  cfg.Import.Timeout,
		TrustedProxies: cfg.Security.TrustedProxies,
		RateLimit:      rate,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go app.Service.StartAuditRetention(jobCtx, core.RetentionConfig{
		RetentionDays: cfg.Audit.RetentionDays,
		CheckInterval: cfg.Audit.CheckInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := app.Service.CommitStatus(); st.Busy {
			slog.Info("waiting for commit to finish", "batch_id", st.BatchID)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
