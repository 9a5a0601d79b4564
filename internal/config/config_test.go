package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
)

var managedKeys = []string{
	"APP_ENV", "APP_PORT", "LOG_LEVEL", "SMS_PROVIDER", "SMS_QUEUE", "SMS_RANDOM_DRIVERS", "SMS_CONFIG_FILE",
	"KAFKA_BROKERS", "KAFKA_JOB_TOPIC", "REDIS_ADDR", "REDIS_POLL_INTERVAL_MS",
	"MAX_ATTEMPTS", "RETRY_BACKOFF", "JOB_TIMEOUT_SECONDS", "WORKER_CONCURRENCY", "PROVIDER_TIMEOUT_SECONDS", "BREAKER_ENABLED",
	"TWILIO_SID", "TWILIO_TOKEN", "TWILIO_FROM",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "fake", cfg.SMS.Default)
	assert.False(t, cfg.SMS.Queue)
	assert.Equal(t, []string{"twilio", "msg91"}, cfg.SMS.RandomDrivers)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "sms.jobs", cfg.Kafka.JobTopic)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, time.Second, cfg.Redis.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Provider())
	assert.True(t, cfg.Breaker.Enabled)

	policy := cfg.Retry.Policy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}, policy.Backoff)
	assert.Equal(t, 30*time.Second, policy.Timeout)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMS_PROVIDER", "Random")
	t.Setenv("SMS_QUEUE", "true")
	t.Setenv("SMS_RANDOM_DRIVERS", " twilio , ,sparrow")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("RETRY_BACKOFF", "1s,2")
	t.Setenv("TWILIO_SID", "AC123")
	t.Setenv("TWILIO_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "random", cfg.SMS.Default)
	assert.True(t, cfg.SMS.Queue)
	assert.Equal(t, []string{"twilio", "sparrow"}, cfg.SMS.RandomDrivers)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.Retry.Backoff)
	assert.Equal(t, common.ProviderConfig{"sid": "AC123", "token": "secret"}, cfg.SMS.Providers["twilio"])
}

func TestLoadCollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("SMS_QUEUE", "maybe")
	t.Setenv("RETRY_BACKOFF", "10s,soon")
	t.Setenv("MAX_ATTEMPTS", "0")
	t.Setenv("JOB_TIMEOUT_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "APP_PORT must be a valid integer")
	assert.Contains(t, msg, "SMS_QUEUE must be a valid boolean")
	assert.Contains(t, msg, "RETRY_BACKOFF must be a list of durations")
	assert.Contains(t, msg, "MAX_ATTEMPTS must be >= 1")
	assert.Contains(t, msg, "JOB_TIMEOUT_SECONDS must be >= 1")
}

func TestLoadFileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWILIO_SID", "AC-env")
	t.Setenv("TWILIO_TOKEN", "env-token")
	t.Setenv("MSG91_KEY_FOR_FILE", "mk-1")

	path := filepath.Join(t.TempDir(), "sms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: msg91
queue: true
random_drivers: [msg91, fake]
providers:
  MSG91:
    authkey: ${MSG91_KEY_FOR_FILE}
    sender: ACME
  fake:
    latency_ms: 5
`), 0o600))
	t.Setenv("SMS_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "msg91", cfg.SMS.Default)
	assert.True(t, cfg.SMS.Queue)
	assert.Equal(t, []string{"msg91", "fake"}, cfg.SMS.RandomDrivers)
	assert.Equal(t, common.ProviderConfig{"authkey": "mk-1", "sender": "ACME"}, cfg.SMS.Providers["msg91"])
	assert.Equal(t, "5", cfg.SMS.Providers["fake"].Get("latency_ms"))
	assert.Equal(t, "AC-env", cfg.SMS.Providers["twilio"].Get("sid"), "env providers not in the file are kept")
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.ErrorContains(t, err, "missing.yaml")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("providers: [oops"), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "config: parse")
}
