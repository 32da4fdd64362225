package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	MinIO    MinIOConfig
	Server   ServerConfig
	NATS     NATSConfig
	Auth     AuthConfig
	ClamAV   ClamAVConfig
	Photos   PhotosConfig
	Sweep    SweepConfig
	Log      LogConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	// Backend is "postgres" or "memory".
	Backend  string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	// Backend is "minio" or "memory".
	Backend    string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
}

// NATSConfig leaves URL empty to keep events in-process.
type NATSConfig struct {
	URL        string
	ClientName string
}

// AuthConfig protects the staff API when IssuerURL is set.
type AuthConfig struct {
	IssuerURL string
	ClientID  string
}

type ClamAVConfig struct {
	Address string
}

type PhotosConfig struct {
	MaxUploadSize  int64
	URLExpiry      time.Duration
	URLCacheSize   int
	ThumbnailWidth int
}

type SweepConfig struct {
	// Schedule is a cron expression; empty disables the scheduled sweep.
	Schedule         string
	ClaimedRetention time.Duration
	ReadyRetention   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	AgentAddr   string
}

// Load reads the configuration from the environment after applying an
// optional .env file. Variables already set in the environment win.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	maxUpload, err := getBytes("PHOTO_MAX_UPLOAD_SIZE", "10MiB")
	if err != nil {
		return nil, err
	}
	urlExpiry, err := getDuration("PHOTO_URL_EXPIRY", "1h")
	if err != nil {
		return nil, err
	}
	claimedRetention, err := getDuration("SWEEP_CLAIMED_RETENTION", "72h")
	if err != nil {
		return nil, err
	}
	readyRetention, err := getDuration("SWEEP_READY_RETENTION", "0")
	if err != nil {
		return nil, err
	}
	cacheSize, err := getInt("PHOTO_URL_CACHE_SIZE", "4096")
	if err != nil {
		return nil, err
	}
	thumbWidth, err := getInt("PHOTO_THUMBNAIL_WIDTH", "480")
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			Backend:  getEnv("STORE_BACKEND", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "snapme"),
			Password: getEnv("DB_PASSWORD", "snapme"),
			DBName:   getEnv("DB_NAME", "snapme"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Backend:    getEnv("OBJECT_BACKEND", "minio"),
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "photos"),
			UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", ""),
			ClientName: getEnv("NATS_CLIENT_NAME", "snapme-photos"),
		},
		Auth: AuthConfig{
			IssuerURL: getEnv("AUTH_ISSUER_URL", ""),
			ClientID:  getEnv("AUTH_CLIENT_ID", ""),
		},
		ClamAV: ClamAVConfig{
			Address: getEnv("CLAMAV_URL", ""),
		},
		Photos: PhotosConfig{
			MaxUploadSize:  maxUpload,
			URLExpiry:      urlExpiry,
			URLCacheSize:   cacheSize,
			ThumbnailWidth: thumbWidth,
		},
		Sweep: SweepConfig{
			Schedule:         getEnv("SWEEP_SCHEDULE", "@every 1h"),
			ClaimedRetention: claimedRetention,
			ReadyRetention:   readyRetention,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnv("DD_TRACE_ENABLED", "false") == "true",
			ServiceName: getEnv("DD_SERVICE", "snapme-photos"),
			AgentAddr:   getEnv("DD_AGENT_HOST", ""),
		},
	}, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBytes(key, defaultValue string) (int64, error) {
	n, err := humanize.ParseBytes(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int64(n), nil
}

func getInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
