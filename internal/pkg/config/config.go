package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store modes.
const (
	StoreModeFile   = "file"
	StoreModeMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	StoreMode string `env:"STORE_MODE" envDefault:"file"`

	FileStoreConfig

	MemoryCapacity     int           `env:"MEMORY_CAPACITY" envDefault:"1000"`
	MemoryRetention    time.Duration `env:"MEMORY_RETENTION" envDefault:"1h"`
	MemoryPreviewChars int           `env:"MEMORY_PREVIEW_CHARS" envDefault:"200"`

	ServerAddr    string   `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr     string   `env:"ADMIN_ADDR" envDefault:":9091"`
	MaxEventSize  int64    `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	APIKeys       []string `env:"API_KEYS" envSeparator:","`
	PruneSchedule string   `env:"PRUNE_SCHEDULE" envDefault:"@every 10m"`
	RedactFields  []string `env:"REDACT_FIELDS" envSeparator:"," envDefault:"apiKey,api_key,password,token,authorization,secret"`

	Forward ForwardConfig
}

// FileStoreConfig locates the durable log directory. It is shared by the
// server and logcli.
type FileStoreConfig struct {
	LogDir        string        `env:"LOG_DIR" envDefault:"./logs"`
	FileRetention time.Duration `env:"FILE_RETENTION" envDefault:"168h"` // 7 days
}

// ForwardConfig configures the optional external sinks of the memory store.
type ForwardConfig struct {
	WebhookURL   string        `env:"LOG_WEBHOOK_URL"`
	RedisURL     string        `env:"FORWARD_REDIS_URL"`
	RedisStream  string        `env:"FORWARD_REDIS_STREAM" envDefault:"callwatch_logs"`
	PostgresURL  string        `env:"FORWARD_POSTGRES_URL"`
	KafkaBrokers string        `env:"FORWARD_KAFKA_BROKERS"`
	KafkaTopic   string        `env:"FORWARD_KAFKA_TOPIC" envDefault:"callwatch.logs"`
	NATSURL      string        `env:"FORWARD_NATS_URL"`
	NATSSubject  string        `env:"FORWARD_NATS_SUBJECT" envDefault:"callwatch.logs"`
	Timeout      time.Duration `env:"FORWARD_TIMEOUT" envDefault:"5s"`
	QueueSize    int           `env:"FORWARD_QUEUE_SIZE" envDefault:"1000"`
	BatchSize    int           `env:"FORWARD_BATCH_SIZE" envDefault:"50"`
	RateLimit    float64       `env:"FORWARD_RATE_LIMIT" envDefault:"0"`
}

// Enabled reports whether any sink is configured.
func (f ForwardConfig) Enabled() bool {
	return f.WebhookURL != "" || f.RedisURL != "" || f.PostgresURL != "" || f.KafkaBrokers != "" || f.NATSURL != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFileStore reads only the durable store settings.
func LoadFileStore() (FileStoreConfig, error) {
	_ = godotenv.Load()

	var cfg FileStoreConfig
	if err := env.Parse(&cfg); err != nil {
		return FileStoreConfig{}, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreMode {
	case StoreModeFile, StoreModeMemory:
	default:
		return fmt.Errorf("invalid STORE_MODE %q: must be %q or %q", c.StoreMode, StoreModeFile, StoreModeMemory)
	}
	if c.StoreMode == StoreModeFile && c.LogDir == "" {
		return fmt.Errorf("LOG_DIR is required in %s mode", StoreModeFile)
	}
	if c.MemoryCapacity <= 0 {
		return fmt.Errorf("MEMORY_CAPACITY must be positive, got %d", c.MemoryCapacity)
	}
	if c.MaxEventSize <= 0 {
		return fmt.Errorf("MAX_EVENT_SIZE_BYTES must be positive, got %d", c.MaxEventSize)
	}
	return nil
}
