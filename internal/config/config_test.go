package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "station-observations", cfg.KafkaSourceTopic)
	assert.Equal(t, "maintenance-tickets", cfg.KafkaSinkTopic)
	assert.Equal(t, "station-qc", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Empty(t, cfg.ThresholdsFile)
	assert.Equal(t, 60, cfg.HistoryMaxEntries)
	assert.Equal(t, 6*time.Hour, cfg.HistoryMaxAge)
	assert.Equal(t, 16, cfg.HistoryShards)
	assert.Equal(t, 1, cfg.IngestWorkers)
	assert.False(t, cfg.Diagnosis.Enabled)
	assert.Empty(t, cfg.Diagnosis.URL)
	assert.Equal(t, 5*time.Second, cfg.Diagnosis.Timeout)
	assert.Equal(t, 500, cfg.Diagnosis.CacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("QC_THRESHOLDS_FILE", "/etc/qc/thresholds.yaml")
	t.Setenv("HISTORY_MAX_ENTRIES", "10")
	t.Setenv("HISTORY_MAX_AGE", "30m")
	t.Setenv("HISTORY_SHARDS", "4")
	t.Setenv("INGEST_WORKERS", "8")
	t.Setenv("DIAG_ENABLED", "true")
	t.Setenv("DIAG_URL", "https://diag.example.com")
	t.Setenv("DIAG_TOKEN", "secret")
	t.Setenv("DIAG_TIMEOUT", "2s")
	t.Setenv("DIAG_CACHE_SIZE", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "/etc/qc/thresholds.yaml", cfg.ThresholdsFile)
	assert.Equal(t, 10, cfg.HistoryMaxEntries)
	assert.Equal(t, 30*time.Minute, cfg.HistoryMaxAge)
	assert.Equal(t, 4, cfg.HistoryShards)
	assert.Equal(t, 8, cfg.IngestWorkers)
	assert.True(t, cfg.Diagnosis.Enabled)
	assert.Equal(t, "https://diag.example.com", cfg.Diagnosis.URL)
	assert.Equal(t, "secret", cfg.Diagnosis.Token)
	assert.Equal(t, 2*time.Second, cfg.Diagnosis.Timeout)
	assert.Equal(t, 0, cfg.Diagnosis.CacheSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_NegativeHistoryBounds(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"HISTORY_MAX_ENTRIES", "-1"},
		{"HISTORY_MAX_AGE", "-5m"},
		{"HISTORY_SHARDS", "-2"},
		{"INGEST_WORKERS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_HistoryUnbounded(t *testing.T) {
	t.Setenv("HISTORY_MAX_ENTRIES", "0")
	t.Setenv("HISTORY_MAX_AGE", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_MAX_ENTRIES")
}

func TestLoad_ZeroWorkersMeansOne(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.IngestWorkers)
}

func TestLoad_DiagnosisEnabledWithoutURL(t *testing.T) {
	t.Setenv("DIAG_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL")
}

func TestLoad_DiagnosisInvalidTimeout(t *testing.T) {
	t.Setenv("DIAG_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIAG_TIMEOUT")
}

func TestLoad_DiagnosisZeroTimeout(t *testing.T) {
	t.Setenv("DIAG_TIMEOUT", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout")
}
