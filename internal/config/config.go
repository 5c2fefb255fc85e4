package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// ThresholdsFile is an optional YAML overlay on the built-in QC thresholds.
	ThresholdsFile string

	HistoryMaxEntries int
	HistoryMaxAge     time.Duration
	HistoryShards     int

	// IngestWorkers > 1 shards packets across workers by station.
	IngestWorkers int

	Diagnosis DiagnosisConfig
}

// DiagnosisConfig configures the optional remote diagnosis backend.
type DiagnosisConfig struct {
	Enabled   bool          `envconfig:"DIAG_ENABLED" default:"false"`
	URL       string        `envconfig:"DIAG_URL" validate:"required_if=Enabled true,omitempty,url"`
	Token     string        `envconfig:"DIAG_TOKEN"`
	Timeout   time.Duration `envconfig:"DIAG_TIMEOUT" default:"5s" validate:"gt=0"`
	CacheSize int           `envconfig:"DIAG_CACHE_SIZE" default:"500" validate:"gte=0"`
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	maxEntries, err := parseNonNegativeInt("HISTORY_MAX_ENTRIES", 60)
	if err != nil {
		return nil, err
	}
	maxAge, err := parseNonNegativeDuration("HISTORY_MAX_AGE", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	shards, err := parseNonNegativeInt("HISTORY_SHARDS", 16)
	if err != nil {
		return nil, err
	}
	workers, err := parseNonNegativeInt("INGEST_WORKERS", 1)
	if err != nil {
		return nil, err
	}
	if workers == 0 {
		workers = 1
	}

	var diag DiagnosisConfig
	if err := envconfig.Process("", &diag); err != nil {
		return nil, fmt.Errorf("diagnosis config: %w", err)
	}
	if err := validator.New().Struct(diag); err != nil {
		return nil, fmt.Errorf("diagnosis config: %w", err)
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "station-observations"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "maintenance-tickets"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "station-qc"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ThresholdsFile:    os.Getenv("QC_THRESHOLDS_FILE"),
		HistoryMaxEntries: maxEntries,
		HistoryMaxAge:     maxAge,
		HistoryShards:     shards,
		IngestWorkers:     workers,

		Diagnosis: diag,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.HistoryMaxEntries == 0 && cfg.HistoryMaxAge == 0 {
		return nil, errors.New("one of HISTORY_MAX_ENTRIES or HISTORY_MAX_AGE must be positive")
	}

	return cfg, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, s)
	}
	return n, nil
}

func parseNonNegativeDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative duration", key, s)
	}
	return d, nil
}
