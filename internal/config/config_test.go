package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, "python3", cfg.PythonPath)
	assert.Equal(t, 2*time.Minute, cfg.RembgWorkerTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Zero(t, cfg.MaxPixels)
	assert.False(t, cfg.UploadEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("SPRITESHEET_MAX_PIXELS", "-1")
	t.Setenv("REMBG_WORKER_TIMEOUT", "45s")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, int64(-1), cfg.MaxPixels)
	assert.Equal(t, 45*time.Second, cfg.RembgWorkerTimeout)
	assert.True(t, cfg.MinIOUseSSL)
	assert.True(t, cfg.UploadEnabled())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)
}

func TestPostgresURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "Unconfigured", cfg: Config{PostgresPort: 5432}, want: ""},
		{
			name: "Explicit URL wins",
			cfg:  Config{DatabaseURL: "postgres://a@b/c", PostgresHost: "ignored"},
			want: "postgres://a@b/c",
		},
		{
			name: "Built from parts",
			cfg:  Config{PostgresHost: "db", PostgresPort: 5433, PostgresUser: "app", PostgresPassword: "p@ss", PostgresDB: "sheets"},
			want: "postgres://app:p%40ss@db:5433/sheets?sslmode=disable",
		},
		{
			name: "No password",
			cfg:  Config{PostgresHost: "db", PostgresPort: 5432, PostgresUser: "app", PostgresDB: "sheets"},
			want: "postgres://app@db:5432/sheets?sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.PostgresURL())
		})
	}
}
