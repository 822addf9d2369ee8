package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/export"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/tracing"
	"github.com/clipforge/clipforge/pkg/models"
)

const queueDepthInterval = 15 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if _, err := logging.NewLogger(logging.Config{
		Level:  cfg.Telemetry.LogLevel,
		Format: "console",
		Output: "stdout",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	logger := log.With().Str("worker_id", workerID).Logger()

	if cfg.Telemetry.JaegerEndpoint != "" {
		_, closer, err := tracing.InitTracer("clipforge-worker", cfg.Telemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer closer.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer c.Close()

	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to queue")
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up dead letter queue")
	}

	if err := os.MkdirAll(cfg.Render.TempDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Render.TempDir).Msg("Failed to create temp dir")
	}

	metricsServer := metrics.NewServer(cfg.Telemetry.MetricsPort)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	service := export.NewService(repo, c, stor, cfg.Render, workerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info().Msg("Shutting down worker gracefully...")
		cancel()
	}()

	go reportQueueDepth(ctx, q)

	jobHandler := func(job *models.ExportJob) error {
		logger.Info().Str("job_id", job.ID).Str("driver", job.Driver).Msg("Processing export job")

		if err := service.ProcessJob(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to process export job")
			return err
		}

		logger.Info().Str("job_id", job.ID).Msg("Finished export job")
		return nil
	}

	logger.Info().Msg("Worker started, waiting for export jobs...")
	if err := q.ConsumeJobs(ctx, jobHandler); err != nil {
		logger.Fatal().Err(err).Msg("Failed to consume jobs")
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	logger.Info().Msg("Worker stopped")
}

// reportQueueDepth keeps the queue depth gauge current
func reportQueueDepth(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.GetQueueDepth()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to inspect queue depth")
				continue
			}
			metrics.ExportQueueDepth.Set(float64(depth))
		}
	}
}
