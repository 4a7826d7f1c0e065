package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/admission"
	internalhttp "github.com/luminalabs/keygate/internal/api/http"
	"github.com/luminalabs/keygate/internal/auth"
	"github.com/luminalabs/keygate/internal/janitor"
	"github.com/luminalabs/keygate/internal/keystore"
	"github.com/luminalabs/keygate/internal/notify"
	"github.com/luminalabs/keygate/internal/pending"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Keygate Server", "version", AppVersion)

	keys := keystore.New(config.Keys)

	admissionCfg := config.Admission
	admissionCfg.UpstreamDomain = config.Upstream.Domain
	admissionCfg.PlatformTag = config.Upstream.Platform
	adm := admission.NewEngine(admissionCfg, keys)

	pendingStore := pending.New(config.Token.PendingTTL)
	notifier := notify.NewDiscord(config.Webhook.DiscordURL)

	jan := janitor.New(config.Janitor.Interval)
	jan.Register("keys", keys)
	jan.Register("pending", pendingStore)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go jan.Run(janitorCtx)

	services := &internalhttp.Services{
		Keys:        keys,
		Pending:     pendingStore,
		Admission:   adm,
		Notifier:    notifier,
		JWT:         auth.JWTConfig{Secret: config.Token.Secret},
		RedirectURL: config.Upstream.RedirectURL,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, config.Http, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")
	stopJanitor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
