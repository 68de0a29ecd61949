package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commerce/internal/config"
	"commerce/internal/domain/asset"
	"commerce/internal/logger"
	"commerce/internal/middleware"
	jwtsvc "commerce/internal/pkg/jwt"
)

type routerDeps struct {
	cfg      *config.AppConfig
	svc      *asset.Service
	storage  asset.Storage
	hub      *asset.Hub
	jwt      *jwtsvc.Service
	registry *prometheus.Registry
	log      *logger.Log
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger(d.log))
	r.Use(middleware.CORS(d.cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	if local, ok := d.storage.(*asset.LocalStorage); ok {
		if mount := d.cfg.Asset.StaticMountPath(); mount != "" {
			r.Static(mount, local.BaseDir())
		}
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(d.jwt), middleware.ChannelScope())
	asset.RegisterRoutes(v1, asset.NewHandler(d.svc, d.hub, d.log))
	return r
}
