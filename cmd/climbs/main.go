package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/climbs/internal/backup"
	"github.com/dukerupert/climbs/internal/config"
	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/handler"
	"github.com/dukerupert/climbs/internal/logging"
	"github.com/dukerupert/climbs/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath, cfg.MaxOpenConns)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, server.Options{
		UserIDPrefix: cfg.UserIDPrefix,
		Cookies:      handler.Cookies{TTL: cfg.SessionTTL, Secure: cfg.SecureCookies},
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  cfg.Backup.Endpoint,
				Bucket:    cfg.Backup.Bucket,
				Region:    cfg.Backup.Region,
				AccessKey: cfg.Backup.AccessKey,
				SecretKey: cfg.Backup.SecretKey,
				Prefix:    cfg.Backup.Prefix,
			},
			Passphrase:    cfg.Backup.Passphrase,
			Hour:          cfg.Backup.Hour,
			RetentionDays: cfg.Backup.RetentionDays,
		},
	}, logger)

	if err := srv.AdminService().EnsureBootstrap(context.Background(), cfg.AdminUsername, cfg.AdminPassword, cfg.AdminName); err != nil {
		logger.Error("failed to bootstrap admin", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(cleanupCtx); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					logger.Debug("cleaned up rate limit entries", "count", n)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	srv.Backups().Start(cleanupCtx)
	logger.Info("backups", "state", srv.Backups().Status().State)

	go func() {
		logger.Info("climbs starting", "addr", ":"+cfg.Port, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	srv.Backups().Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
