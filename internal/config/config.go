package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment; command-line flags override it.
type Config struct {
	// DatabaseURL wins over the discrete POSTGRES_* settings.
	DatabaseURL string `env:"SPRITESHEET_DB_URL"`

	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     int    `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"       envDefault:"spritesheet"`

	FFmpegPath  string `env:"FFMPEG_PATH"  envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	PythonPath         string        `env:"PYTHON_PATH"          envDefault:"python3"`
	RembgWorkerScript  string        `env:"REMBG_WORKER_SCRIPT"  envDefault:"python/rembg_worker.py"`
	RembgWorkerTimeout time.Duration `env:"REMBG_WORKER_TIMEOUT" envDefault:"2m"`

	TempDir   string `env:"SPRITESHEET_TEMP_DIR"`
	MaxPixels int64  `env:"SPRITESHEET_MAX_PIXELS"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`
	MinIOBucket    string `env:"MINIO_BUCKET"     envDefault:"spritesheets"`
	MinIOPrefix    string `env:"MINIO_PREFIX"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// PostgresURL returns the registry connection string, or "" when no
// database is configured.
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.PostgresHost == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	return u.String()
}

// UploadEnabled reports whether an object store endpoint is configured.
func (c *Config) UploadEnabled() bool {
	return c.MinIOEndpoint != ""
}
