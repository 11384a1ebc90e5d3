// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"render-studio/internal/config"
	"render-studio/internal/domain/ports/adapter"
	portwatch "render-studio/internal/domain/ports/watch"
	"render-studio/internal/infra/adapters/replicate"
	pg "render-studio/internal/infra/db/postgres"
	"render-studio/internal/infra/logging"
	"render-studio/internal/infra/metrics"
	"render-studio/internal/infra/notify"
	red "render-studio/internal/infra/redis"
	"render-studio/internal/infra/sched"
	"render-studio/internal/infra/transport"
	"render-studio/internal/infra/watch"
	"render-studio/internal/infra/web"
	"render-studio/internal/infra/worker"
	"render-studio/internal/usecase"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (fake provider, console logs)")
	flag.Parse()

	// .env first so the config file can reference the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	feed := red.NewFeed(redisClient, logger)

	// ---- Repositories ----
	renderRepo := pg.NewRenderRepo(pool)

	// ---- Inference provider ----
	var provider adapter.InferenceProvider
	if cfg.Runtime.Dev || cfg.Provider.Token == "" {
		if !cfg.Runtime.Dev {
			logger.Warn().Msg("provider.token not set; using the fake provider")
		}
		provider = replicate.NewNoopProvider()
	} else {
		client := transport.NewClient(cfg.Retry, 30*time.Second, logger)
		provider, err = replicate.NewAdapter(cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.Version, client)
		if err != nil {
			logger.Fatal().Err(err).Msg("provider adapter")
		}
	}
	logger.Info().Str("provider", provider.Name()).Msg("inference provider ready")

	// ---- Use cases ----
	checker := usecase.NewHTTPImageChecker(cfg.Preflight.Timeout)
	renderUC := usecase.NewRenderUseCase(renderRepo, provider, checker, rateLimiter, feed, usecase.RenderUCOptions{
		RateLimit:    cfg.RateLimit.Submissions,
		RateWindow:   cfg.RateLimit.Window,
		PollBudget:   cfg.Polling.Budget,
		PollInterval: cfg.Polling.Interval,
	}, logger)

	// ---- Worker pool + tracking ----
	workerPool := worker.NewPool(8, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	tracker := worker.NewTracker(workerPool, renderUC, logger)

	// ---- Reconciliation strategy (one per session, never both) ----
	var watcher portwatch.Watcher
	switch strings.ToLower(cfg.Watch.Mode) {
	case "feed":
		watcher = feed
		logger.Info().Msg("watch mode: live change feed")
	default:
		watcher = watch.NewPoller(renderRepo,
			cfg.Polling.ActiveInterval, cfg.Polling.IdleInterval, cfg.Polling.ErrorInterval,
			cfg.Polling.PageSize, logger)
		logger.Info().Msg("watch mode: storage polling")
	}
	sink := notify.NewSink(0)
	notifier := notify.NewNotifier(sink, logger)

	// ---- Web ----
	authMgr := web.NewAuthManager(cfg.Web.JWTSecret, !cfg.Runtime.Dev, "", cfg.Web.TokenTTL)
	server := web.NewServer(renderUC, tracker, sink, authMgr, logger)
	server.EnableWatch(ctx, watcher, notifier.Handlers())
	defer server.StopWatches()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
		Handler: server.Router(),
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Stale-render sweep ----
	reconciler := sched.NewRenderReconciler(renderUC, renderRepo, cfg.Sweep.Interval, cfg.Sweep.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
