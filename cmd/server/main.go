package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"port42/internal/auth"
	"port42/internal/config"
	"port42/internal/db"
	"port42/internal/handlers"
	"port42/internal/logger"
	"port42/internal/middleware"
	"port42/internal/realtime"
	"port42/internal/router"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	realtimeQueueSize = 256
	threadCacheSize   = 1024
	crawlerWorkers    = 2
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Database
	database, err := db.Open(cfg.DatabaseURL, cfg.DatabaseDebug)
	if err != nil {
		logr.Fatalw("Connect database failed", "error", err)
	}
	if err := db.Migrate(database, logr); err != nil {
		logr.Fatalw("Migrate database failed", "error", err)
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTExpiresIn)
	if err != nil {
		logr.Fatalw("Init JWT signer failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 实时推送：配置了 NATS 时跨实例广播，否则只推本机连接
	hub := realtime.NewHub(logr, realtimeQueueSize)
	var notifier realtime.Notifier = hub
	if cfg.NATSURL != "" {
		relay, err := realtime.NewNATSRelay(cfg.NATSURL, hub, logr)
		if err != nil {
			logr.Warnw("NATS unavailable, realtime stays local", "url", cfg.NATSURL, "error", err)
		} else {
			defer relay.Close()
			notifier = relay
		}
	}

	threads, err := services.NewThreadCache(threadCacheSize, cfg.ThreadCacheTTL)
	if err != nil {
		logr.Fatalw("Init thread cache failed", "error", err)
	}

	// 初始化异步排名服务
	ranking := services.NewRankingService(database, logr)
	ranking.Start(ctx)
	scheduler, err := ranking.StartCron(ctx, cfg.RankingCron)
	if err != nil {
		logr.Fatalw("Invalid ranking cron", "spec", cfg.RankingCron, "error", err)
	}
	defer scheduler.Stop()

	crawler := services.NewCrawlerService(database, logr)
	crawler.Start(ctx, crawlerWorkers)

	votes := services.NewVoteService(database, logr, notifier, ranking, threads)
	comments := services.NewCommentService(database, logr, notifier, votes, ranking, threads)
	resources := services.NewResourceService(database, logr, votes, ranking, crawler)
	communities := services.NewCommunityService(database, logr)
	users := services.NewUserService(database, logr)
	notifications := services.NewNotificationService(database, logr)

	engine := router.New(router.Options{
		SessionSecret:      cfg.SessionSecret,
		SecureCookie:       cfg.IsProduction(),
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, logr, middleware.NewAuthenticator(database, signer, logr), router.Handlers{
		Auth:         handlers.NewAuthHandler(users, notifications, signer, logr),
		Community:    handlers.NewCommunityHandler(communities),
		Resource:     handlers.NewResourceHandler(resources, comments),
		Comment:      handlers.NewCommentHandler(comments),
		Vote:         handlers.NewVoteHandler(votes),
		Notification: handlers.NewNotificationHandler(notifications),
		Realtime:     handlers.NewRealtimeHandler(ctx, hub, logr),
		Health:       handlers.NewHealthHandler(database),
	}, ctx.Done())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Infow("Port42 server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatalw("Server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	// websocket 连接随 ctx 一起关闭，Shutdown 只等普通请求
	logr.Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Errorw("Graceful shutdown failed", "error", err)
	}
}
