package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/middleware"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/tracing"
	"github.com/clipforge/clipforge/internal/transcoder"
)

// API carries the shared dependencies behind the HTTP handlers
type API struct {
	cfg     *config.Config
	repo    *database.Repository
	storage *storage.Storage
	queue   *queue.Queue
	cache   *cache.Cache
	ffmpeg  *transcoder.FFmpeg
}

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

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	if cfg.Telemetry.JaegerEndpoint != "" {
		_, closer, err := tracing.InitTracer("clipforge-api", cfg.Telemetry.JaegerEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer closer.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer c.Close()

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to queue")
	}
	defer q.Close()

	metricsServer := metrics.NewServer(cfg.Telemetry.MetricsPort)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	api := &API{
		cfg:     cfg,
		repo:    repo,
		storage: stor,
		queue:   q,
		cache:   c,
		ffmpeg:  transcoder.NewFFmpeg(cfg.Render.FFmpegPath, cfg.Render.FFprobePath),
	}

	router := setupRouter(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	metricsServer.Shutdown(ctx)

	log.Info().Msg("Server stopped")
}

func setupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", api.healthCheck)

	limiter := middleware.NewRateLimiter(20, 40)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(limiter))
	if api.cfg.Auth.JWTSecret != "" {
		v1.Use(middleware.JWTAuth())
	}
	{
		// Media library
		v1.POST("/media/upload", api.uploadMedia)
		v1.GET("/media/:id", api.getMedia)
		v1.GET("/media", api.listMedia)
		v1.DELETE("/media/:id", api.deleteMedia)

		// Exports
		v1.POST("/exports", api.createExport)
		v1.GET("/exports", api.listExports)
		v1.GET("/exports/:id", api.getExport)
		v1.GET("/exports/:id/progress", api.getExportProgress)
		v1.POST("/exports/:id/cancel", api.cancelExport)
		v1.GET("/exports/:id/download", api.downloadExport)

		// Editing-assist payload tools
		v1.POST("/tools/transcription", api.parseTranscription)
		v1.POST("/tools/broll", api.parseBrollSuggestions)
		v1.POST("/tools/speech-regions", api.speechRegions)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	if err := api.cache.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}
