package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"commerce/internal/config"
	"commerce/internal/database"
	"commerce/internal/domain/asset"
	"commerce/internal/logger"
	"commerce/internal/middleware"
	jwtsvc "commerce/internal/pkg/jwt"
	"commerce/internal/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Get().WithErr(err).Fatal("load config")
	}
	log := logger.Init(cfg.LogLevel)
	log.WithFields(map[string]interface{}{
		"driver":    cfg.Asset.StorageDriver,
		"path":      cfg.Asset.StoragePath,
		"max_mb":    cfg.Asset.MaxFileSizeMB,
		"canonical": cfg.Asset.CanonicalImageExt,
		"variants":  len(cfg.Asset.Variants),
	}).Info("asset config loaded")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithErr(err).Fatal("connect database")
	}
	if err := asset.AutoMigrate(db); err != nil {
		log.WithErr(err).Fatal("migrate asset tables")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	assetMetrics, err := metrics.NewAssetMetrics(registry)
	if err != nil {
		log.WithErr(err).Fatal("register metrics")
	}

	svc, storage, err := asset.NewFromConfig(db, cfg.Asset, log)
	if err != nil {
		log.WithErr(err).Fatal("init asset service")
	}
	hub := asset.NewHub(log, middleware.AllowedOrigins(cfg.CORSOrigins)...)
	svc.WithPublisher(hub).WithMetrics(assetMetrics)

	purger := asset.NewPurger(svc, cfg.Asset.PurgeRetention, log)
	if err := purger.Start(cfg.Asset.PurgeSchedule); err != nil {
		log.WithErr(err).Fatal("schedule purge")
	}
	defer purger.Stop()

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(routerDeps{
		cfg:      cfg,
		svc:      svc,
		storage:  storage,
		hub:      hub,
		jwt:      j,
		registry: registry,
		log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithErr(err).Fatal("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithErr(err).Error("http server shutdown")
	}
	log.Info("server stopped")
}
