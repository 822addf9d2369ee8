package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Render    RenderConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// RenderConfig holds export pipeline configuration
type RenderConfig struct {
	WorkerCount   int
	TempDir       string
	FFmpegPath    string
	FFprobePath   string
	DefaultWidth  int
	DefaultHeight int
	DefaultFPS    float64
	FrameCacheCap int
	DecodeTimeout time.Duration
	MaxUploadSize int64
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// TelemetryConfig holds metrics, tracing and logging configuration
type TelemetryConfig struct {
	MetricsPort    int
	JaegerEndpoint string
	LogLevel       string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "clipforge")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "clipforge")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Render defaults
	viper.SetDefault("render.workerCount", 2)
	viper.SetDefault("render.tempDir", "/tmp/clipforge")
	viper.SetDefault("render.ffmpegPath", "ffmpeg")
	viper.SetDefault("render.ffprobePath", "ffprobe")
	viper.SetDefault("render.defaultWidth", 1920)
	viper.SetDefault("render.defaultHeight", 1080)
	viper.SetDefault("render.defaultFPS", 30.0)
	viper.SetDefault("render.frameCacheCap", 5)
	viper.SetDefault("render.decodeTimeout", "5s")
	viper.SetDefault("render.maxUploadSize", 500*1024*1024) // 500MB

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")

	// Telemetry defaults
	viper.SetDefault("telemetry.metricsPort", 9090)
	viper.SetDefault("telemetry.jaegerEndpoint", "")
	viper.SetDefault("telemetry.logLevel", "info")
}
