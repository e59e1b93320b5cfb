// cmd/worker/main.go
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shopcraft/media-pipeline/internal/bus"
	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
	"github.com/shopcraft/media-pipeline/internal/pipeline"
	"github.com/shopcraft/media-pipeline/internal/queue"
	"github.com/shopcraft/media-pipeline/internal/storage"
	"github.com/shopcraft/media-pipeline/internal/validate"
	"github.com/shopcraft/media-pipeline/internal/variants"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("worker starting",
		"nats_url", cfg.NATSURL,
		"job_subject", cfg.JobSubject,
		"queue", cfg.WorkerQueue,
		"storage_backend", cfg.StorageType,
		"database_path", cfg.DatabasePath)

	caps := validate.DetectCapabilities()
	logger.Info("detected capabilities",
		"ffmpeg", caps.HasFFmpeg,
		"video_probe", caps.HasVideoProbe,
		"mesh_loader", caps.HasMeshLoader,
		"renderer", caps.Has3DRenderer)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		fatal(logger, "ensure database directory", err, "database_path", cfg.DatabasePath)
	}
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		fatal(logger, "open database", err, "database_path", cfg.DatabasePath)
	}
	repo, err := ledger.NewGormRepository(db)
	if err != nil {
		fatal(logger, "migrate ledger", err)
	}

	store, err := storage.NewBackend(storage.Config{
		Type:         cfg.StorageType,
		LocalPath:    cfg.LocalPath,
		S3Endpoint:   cfg.S3Endpoint,
		S3Bucket:     cfg.S3Bucket,
		S3AccessKey:  cfg.S3AccessKey,
		S3SecretKey:  cfg.S3SecretKey,
		S3Region:     cfg.S3Region,
		S3UseSSL:     cfg.S3UseSSL,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		fatal(logger, "build storage backend", err, "type", cfg.StorageType)
	}

	urls := &objectkey.URLResolver{
		Mock:          cfg.MockURLs,
		LocalBase:     cfg.LocalURLBase,
		Domains:       cfg.CDNDomains,
		DefaultDomain: cfg.DefaultDomain,
	}

	limits := validate.DefaultLimits()
	limits.MaxImageBytes = cfg.MaxImageBytes
	validator := validate.New(limits, caps, variants.FFprobe{})

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	defer nc.Close()

	jobQueue := queue.NewNATSQueue(nc, cfg.JobSubject, cfg.WorkerQueue)
	defer jobQueue.Close()

	p := pipeline.New(repo, store, urls, validator, jobQueue, logger, pipeline.Options{
		ImageRetries:  cfg.ImageRetries,
		MediaRetries:  cfg.MediaRetries,
		BackoffBase:   cfg.BackoffBase,
		ResultSubject: cfg.ResultSubject,
	})
	p.SetEventPublisher(nc)

	if err := p.StartWorker(); err != nil {
		fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
	}
	logger.Info("listening for variant jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue)

	select {}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
