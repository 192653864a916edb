// Package main runs the stream capture HTTP server with WebSocket job
// events and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamvault/backend/config"
	"github.com/streamvault/backend/internal/auth"
	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/download"
	"github.com/streamvault/backend/internal/eventsub"
	"github.com/streamvault/backend/internal/jobs"
	"github.com/streamvault/backend/internal/media"
	"github.com/streamvault/backend/internal/middleware"
	"github.com/streamvault/backend/internal/realtime"
	"github.com/streamvault/backend/internal/schedules"
	"github.com/streamvault/backend/internal/twitch"
	"github.com/streamvault/backend/internal/videos"
	"github.com/streamvault/backend/pkg/database"
	"github.com/streamvault/backend/pkg/queue"
	"github.com/streamvault/backend/pkg/redis"
	"github.com/streamvault/backend/pkg/response"
	"github.com/streamvault/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.AccessKeyID != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			CapturesBucket:       cfg.AWS.CapturesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	registry := jobs.NewRegistry(hub, logger)

	// Repositories
	videoRepo := videos.NewRepository(pool)
	scheduleRepo := schedules.NewRepository(pool)
	eventRepo := eventsub.NewRepository(pool)
	fetchLogRepo := twitch.NewFetchLogRepository(pool)

	// Helix client behind a Redis-backed snapshot cache. Fetch logs are
	// attributed to the system account.
	helix := twitch.NewClient(twitch.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		APIBaseURL:   cfg.Twitch.APIBaseURL,
		AuthURL:      cfg.Twitch.AuthURL,
	}, logger)
	snapshots := twitch.NewCachedSnapshots(helix, rdb.Client, fetchLogRepo, uuid.Nil, logger)

	matcher := schedules.NewMatcher(scheduleRepo, snapshots, logger)

	// Capture pipeline
	runner := capture.NewRunner(capture.ResolveBinary(cfg.Capture.BinaryPath), logger)
	thumbDir := filepath.Join(cfg.Capture.OutputDir, "thumbnails")
	extractor := media.NewExtractor(cfg.Capture.FFmpegPath, cfg.Capture.FFprobePath, thumbDir, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	var archiver download.ArchiveEnqueuer
	if s3Client != nil {
		archiver = jobQueue
	}
	orchestrator := download.NewOrchestrator(videoRepo, registry, runner, extractor, archiver, cfg.Capture.OutputDir, logger)

	// Jobs interrupted by a previous crash cannot resume; fail them so
	// admission opens up again.
	if n, err := videoRepo.SweepStale(ctx); err != nil {
		logger.Error("stale job sweep", zap.Error(err))
	} else if n > 0 {
		logger.Info("stale jobs failed on startup", zap.Int64("count", n))
	}

	// Handlers
	eventsubHandler := eventsub.NewHandler(cfg.Twitch.EventSubSecret, eventRepo, snapshots, matcher, orchestrator, logger)
	videoHandler := videos.NewHandler(videoRepo, registry, orchestrator, snapshots, jobQueue, s3Client, cfg.Capture.OutputDir, logger)
	scheduleHandler := schedules.NewHandler(scheduleRepo)
	channelHandler := twitch.NewHandler(helix, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// EventSub callback (no JWT; HMAC-verified in the handler)
	router.POST("/webhook/callback", eventsubHandler.Callback)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/downloads", videoHandler.StartDownload)
		api.GET("/jobs/:id", videoHandler.GetJob)

		api.GET("/videos", videoHandler.List)
		api.GET("/videos/:id", videoHandler.GetByID)
		api.GET("/videos/:id/download-url", videoHandler.DownloadURL)
		api.POST("/videos/:id/repair", videoHandler.Repair)

		api.GET("/webhook/events", eventsubHandler.ListEvents)
		api.GET("/channels", channelHandler.ListFollowed)

		api.GET("/schedules", scheduleHandler.List)
		api.POST("/schedules", scheduleHandler.Create)
		api.PATCH("/schedules/:id", scheduleHandler.Toggle)
		api.DELETE("/schedules/:id", scheduleHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtService))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
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
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
