// Package main runs the background job worker (clip repair and S3 archival).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamvault/backend/config"
	"github.com/streamvault/backend/internal/media"
	"github.com/streamvault/backend/internal/videos"
	"github.com/streamvault/backend/internal/worker"
	"github.com/streamvault/backend/pkg/database"
	"github.com/streamvault/backend/pkg/queue"
	"github.com/streamvault/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Archive jobs need S3; repair jobs run without it.
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

	videoRepo := videos.NewRepository(pool)
	repairer := media.NewRepairer(cfg.Capture.FFmpegPath, cfg.Capture.FFprobePath, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(videoRepo, repairer, s3Client, jobQueue, logger)

	var remover worker.ObjectRemover
	if s3Client != nil {
		remover = s3Client
	}
	retention := worker.NewRetention(videoRepo, remover, cfg.Capture.OutputDir, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go retention.Run(workerCtx, time.Hour)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
