package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roomrelay/backend/internal/api/handler"
	"roomrelay/backend/internal/chathub"
	"roomrelay/backend/internal/cipher"
	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/localization"
	"roomrelay/backend/internal/reaper"
	"roomrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg)
	logrus.WithField("env", cfg.Env).Info("Starting room relay backend...")

	// The relay keeps serving without a database; room operations then
	// reject with databaseUnavailable.
	var store storage.Storage
	db, err := storage.Connect(cfg.Database)
	if err != nil {
		logrus.WithError(err).Error("PostgreSQL unavailable, running without persistence")
		db = nil
	} else if err := db.Migrate(); err != nil {
		logrus.WithError(err).Error("Migration failed, running without persistence")
		db.Close()
		db = nil
	}
	defer db.Close()

	rdb, err := storage.ConnectRedis(cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, rate limiting disabled")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// The limiter only needs Redis, so it works even when PostgreSQL is down.
	svc := storage.NewStorageService(nil, rdb)
	if db != nil {
		svc.DB = db.DB
		store = svc
	}

	loc, err := localization.NewDefaultLocalizer(cfg.DefaultLanguage)
	if err != nil {
		logrus.Fatalf("Failed to load translations: %v", err)
	}
	if cfg.LocalesDir != "" {
		if err := loc.LoadDir(cfg.LocalesDir); err != nil {
			logrus.WithError(err).Warn("Failed to load locale overrides")
		}
	}

	hub := chathub.NewManagerService(store, cipher.NewGateway(cfg.Crypto), loc)
	hub.DefaultLanguage = cfg.DefaultLanguage
	hub.Limits = cfg.Limits

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	if store != nil {
		go reaper.New(store, cfg.Reaper).Run(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	handler.NewHandler(hub, cfg, svc).RegisterRoutes(r)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown")
	}
	logrus.Info("Server exited")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"ip":      c.ClientIP(),
		}).Debug("request")
	}
}
