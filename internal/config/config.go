package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	TelegramToken   string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	TelegramBaseURL string `envconfig:"TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`

	PutioToken string `envconfig:"PUTIO_TOKEN" required:"true"`

	DownloadDir     string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	DefaultFileName string        `envconfig:"DEFAULT_FILE_NAME" default:"file.bin"`
	EditInterval    time.Duration `envconfig:"EDIT_INTERVAL" default:"7s"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	UpdateTimeout   time.Duration `envconfig:"UPDATE_TIMEOUT" default:"30s"`
	FetchTimeout    time.Duration `envconfig:"FETCH_HEADER_TIMEOUT" default:"30s"`
	MaxParallel     int           `envconfig:"MAX_PARALLEL" default:"5"`
	KeepStagedFor   time.Duration `envconfig:"KEEP_STAGED_FOR" default:"24h"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"INFO"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"mirror_relay"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
