package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/config"
	"github.com/iliyamo/designer-bridge/internal/customcode"
	"github.com/iliyamo/designer-bridge/internal/exchange"
	"github.com/iliyamo/designer-bridge/internal/handler"
	"github.com/iliyamo/designer-bridge/internal/middleware"
	"github.com/iliyamo/designer-bridge/internal/platform"
	"github.com/iliyamo/designer-bridge/internal/queue"
	"github.com/iliyamo/designer-bridge/internal/router"
	"github.com/iliyamo/designer-bridge/internal/session"
	"github.com/iliyamo/designer-bridge/internal/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.db.Close()

	sessions, err := session.NewService(cfg.JWTSecret, stores.users,
		session.WithLifetime(cfg.SessionTTL), session.WithLogger(logger))
	if err != nil {
		return err
	}

	wf := platform.New(platform.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		RedirectURL:  cfg.CallbackURL,
		APIBaseURL:   cfg.APIBaseURL,
		Scopes:       cfg.Scopes,
	}, logger)

	exch := exchange.NewService(wf, stores.sites, stores.users, sessions, exchange.Config{
		ClientID:     cfg.ClientID,
		PopupState:   cfg.PopupState,
		DashboardURL: cfg.DashboardURL,
		DesignerURL:  cfg.DesignerURL,
		Timeout:      cfg.UpstreamTimeout,
	}, logger)

	// Redis is optional: a nil client disables the shared cache layer and
	// the rate limiter.
	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	cacheCfg := config.LoadStatusCacheConfig()
	local := status.NewMemoryCache(cacheCfg.Retain)
	var statusCache status.Cache
	if cacheCfg.Enabled {
		var shared status.Cache
		if rc := status.NewRedisCache(rdb, cacheCfg.Prefix, cacheCfg.Retain, logger); cacheCfg.Shared && rc != nil {
			shared = rc
		}
		statusCache = status.NewLayered(local, shared)
	}
	engine := status.NewEngine(statusCache, status.Options{
		FreshFor:   cacheCfg.FreshFor,
		BatchSize:  cacheCfg.BatchSize,
		BatchPause: cacheCfg.BatchPause,
	}, logger)

	origin := uuid.NewString()
	var publisher customcode.Publisher
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, origin, logger)
		defer pub.Close()
		publisher = pub

		consumer := queue.NewConsumer(cfg.AMQPURL, origin, func(ctx context.Context, ev queue.CodeChangedEvent) {
			// the shared layer was already updated by the publishing instance
			if ev.Action == queue.ActionCleared || ev.ScriptID == "" {
				local.DeleteTarget(ctx, ev.TargetID)
				return
			}
			local.Delete(ctx, ev.ScriptID, ev.TargetID)
		}, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invalidation consumer stopped", zap.Error(err))
			}
		}()
	}

	code := customcode.NewService(wf, engine, publisher, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e, handler.Health(stores.db))
	router.RegisterAuth(e, handler.NewAuthHandler(exch, logger),
		middleware.RateLimit(config.LoadTokenRateLimitConfig(), rdb, logger))

	api := router.Protected(e, sessions, middleware.RateLimit(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterCustomCode(api, handler.NewCustomCodeHandler(engine, code, wf, logger))
	router.RegisterSites(api, handler.NewSitesHandler(wf, logger),
		middleware.ResponseCache(config.LoadResponseCacheConfig(), rdb))
	router.RegisterDev(e, handler.NewAdminHandler(logger, local.Clear, stores.sites, stores.users), cfg.IsDevelopment())

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
