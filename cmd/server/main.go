// Package main runs the live poll HTTP server with WebSocket push and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livepoll/backend/config"
	"github.com/livepoll/backend/internal/auth"
	"github.com/livepoll/backend/internal/clock"
	"github.com/livepoll/backend/internal/ledger"
	"github.com/livepoll/backend/internal/middleware"
	"github.com/livepoll/backend/internal/models"
	"github.com/livepoll/backend/internal/polls"
	"github.com/livepoll/backend/internal/realtime"
	"github.com/livepoll/backend/pkg/database"
	"github.com/livepoll/backend/pkg/redis"
	"github.com/livepoll/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	sysClock := clock.System{}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Vote ledger
	var voteLedger ledger.Ledger
	switch cfg.Poll.LedgerBackend {
	case config.LedgerPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		voteLedger = ledger.NewPostgres(pool)
	case config.LedgerRedis:
		voteLedger = ledger.NewRedis(rdb.Client)
	default:
		voteLedger = ledger.NewMemory()
	}
	logger.Info("vote ledger ready", zap.String("backend", cfg.Poll.LedgerBackend))

	// Poll
	now := sysClock.Now()
	poll, err := models.NewPoll(cfg.Poll.ID, cfg.Poll.Question, cfg.Poll.Options, now, now.Add(cfg.Poll.Duration))
	if err != nil {
		logger.Fatal("poll", zap.Error(err))
	}

	// Realtime (Redis fan-out when several instances serve the same poll)
	var hub *realtime.Hub
	if rdb != nil {
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(poll.ID, logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(poll.ID, logger, nil, nil)
	}
	if err := hub.Start(); err != nil {
		logger.Fatal("realtime", zap.Error(err))
	}

	// Engine, metrics, lifecycle
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := polls.NewMetrics(registry)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	engine := polls.NewEngine(poll, voteLedger, sysClock, hub, logger)
	engine.SetMetrics(metrics)

	lifecycle := polls.NewLifecycle(engine, sysClock, cfg.Poll.TickInterval, hub, logger)
	engine.OnClose(lifecycle.Cancel)

	var simulator *polls.Simulator
	if cfg.Poll.Simulate {
		simulator = polls.NewSimulator(engine, sysClock, cfg.Poll.SimulateInterval, nil, logger)
		engine.OnClose(simulator.Cancel)
	}

	lifecycle.Start()
	if simulator != nil {
		simulator.Start()
	}

	voterTokens := auth.NewVoterTokens(cfg.Voter.Secret, cfg.Voter.TokenTTL)
	pollHandler := polls.NewHandler(engine, sysClock, cfg.ShareURL(), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "poll_active": engine.IsActive()}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Administrator
	router.POST("/polls/:id/close", middleware.RequireAdminKey(cfg.Admin.Key), pollHandler.Close)

	// Voter API (anonymous identity cookie)
	api := router.Group("")
	api.Use(middleware.Voter(voterTokens, cfg.Voter.SecureCookie, logger))
	{
		api.GET("/poll", pollHandler.Get)
		api.GET("/polls/:id/results", pollHandler.Results)
		api.POST("/polls/:id/votes", pollHandler.Vote)
		api.GET("/ws", realtime.ServeWs(hub, logger, splitOrigins(cfg.Server.CORSAllowedOrigins), middleware.VoterID, pollHandler.State))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("poll_id", poll.ID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if simulator != nil {
		simulator.Stop()
	}
	lifecycle.Stop()
	hub.Close()
	logger.Info("server stopped", zap.Int("total_votes", engine.Snapshot().TotalVotes))
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
