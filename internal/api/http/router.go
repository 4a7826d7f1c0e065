package http

import (
	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/admission"
	"github.com/luminalabs/keygate/internal/api/http/handler"
	"github.com/luminalabs/keygate/internal/api/http/middleware"
	"github.com/luminalabs/keygate/internal/auth"
	"github.com/luminalabs/keygate/internal/keystore"
	"github.com/luminalabs/keygate/internal/metrics"
	"github.com/luminalabs/keygate/internal/notify"
	"github.com/luminalabs/keygate/internal/pending"
)

type Services struct {
	Keys        *keystore.Store
	Pending     *pending.Store
	Admission   *admission.Engine
	Notifier    notify.Notifier
	JWT         auth.JWTConfig
	RedirectURL string
}

func SetupRoute(engine *gin.Engine, cfg Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	tokenHandler := handler.NewTokenHandler(srvs.Pending, srvs.JWT, srvs.RedirectURL)
	verifyHandler := handler.NewVerifyHandler(srvs.Keys, srvs.Pending, srvs.Admission, srvs.Notifier, srvs.JWT)
	statsHandler := handler.NewStatsHandler(srvs.Keys, srvs.Admission)
	adminHandler := handler.NewAdminHandler(srvs.Keys, srvs.Notifier)

	engine.GET("/health", healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api/v1")
	api.GET("/token", tokenHandler.Issue)
	api.GET("/verify", verifyHandler.Verify)
	api.GET("/generate", verifyHandler.Verify)
	api.GET("/stats", statsHandler.Stats)

	keys := api.Group("/keys", middleware.APIKeyAuth(cfg.AdminAPIKey))
	keys.DELETE("/:key", adminHandler.RevokeKey)

	// Bare aliases matching the original endpoint names, for the script
	// loaders already wired to them.
	engine.GET("/token", tokenHandler.Issue)
	engine.GET("/verify", verifyHandler.Verify)
	engine.GET("/generate", verifyHandler.Verify)
	engine.GET("/stats", statsHandler.Stats)
}
