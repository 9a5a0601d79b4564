package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/util"
)

// Config captures all runtime configuration for the gateway and worker.
type Config struct {
	App      AppConfig
	SMS      SMSConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Retry    RetryConfig
	Timeouts TimeoutConfig
	Breaker  BreakerConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// SMSConfig selects providers and holds their credentials.
type SMSConfig struct {
	Default       string
	Queue         bool
	RandomDrivers []string
	Providers     map[string]common.ProviderConfig
}

// KafkaConfig defines brokers and topics. No brokers means jobs run
// in-process and events are only logged.
type KafkaConfig struct {
	Brokers       []string
	JobTopic      string
	EventTopic    string
	WebhookTopic  string
	DLQTopic      string
	ConsumerGroup string
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig locates the delay queue. An empty Addr disables it.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DelayKey     string
	PollInterval time.Duration
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// RetryConfig controls worker retry and backoff behaviour.
type RetryConfig struct {
	MaxAttempts       int
	Backoff           []time.Duration
	WorkerConcurrency int
	MaxPayloadBytes   int
	JobTimeoutSeconds int
}

// Policy converts the settings into a jobs.RetryPolicy.
func (r RetryConfig) Policy() jobs.RetryPolicy {
	return jobs.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Backoff:     append([]time.Duration(nil), r.Backoff...),
		Timeout:     time.Duration(r.JobTimeoutSeconds) * time.Second,
	}
}

// TimeoutConfig contains timeout thresholds for outbound providers.
type TimeoutConfig struct {
	ProviderTimeoutSeconds int
}

// Provider returns the per-call provider timeout.
func (t TimeoutConfig) Provider() time.Duration {
	return time.Duration(t.ProviderTimeoutSeconds) * time.Second
}

// BreakerConfig toggles per-provider circuit breakers.
type BreakerConfig struct {
	Enabled bool
}

// providerEnv maps provider config keys to the environment variables that
// supply them when no config file is used.
var providerEnv = map[string][][2]string{
	"twilio": {
		{"sid", "TWILIO_SID"},
		{"token", "TWILIO_TOKEN"},
		{"from", "TWILIO_FROM"},
	},
	"sparrow": {
		{"token", "SPARROW_TOKEN"},
		{"from", "SPARROW_FROM"},
	},
	"msg91": {
		{"authkey", "MSG91_AUTHKEY"},
		{"sender", "MSG91_SENDER"},
		{"route", "MSG91_ROUTE"},
	},
	"vonage": {
		{"key", "VONAGE_KEY"},
		{"secret", "VONAGE_SECRET"},
		{"from", "VONAGE_FROM"},
	},
	"sns": {
		{"key", "AWS_ACCESS_KEY_ID"},
		{"secret", "AWS_SECRET_ACCESS_KEY"},
		{"region", "AWS_DEFAULT_REGION"},
		{"sender_id", "SNS_SENDER_ID"},
		{"sms_type", "SNS_SMS_TYPE"},
	},
	"whatsapp": {
		{"phone_number_id", "WHATSAPP_PHONE_NUMBER_ID"},
		{"access_token", "WHATSAPP_ACCESS_TOKEN"},
		{"business_account_id", "WHATSAPP_BUSINESS_ACCOUNT_ID"},
		{"api_version", "WHATSAPP_API_VERSION"},
		{"template_language", "WHATSAPP_TEMPLATE_LANGUAGE"},
		{"default_country_code", "WHATSAPP_DEFAULT_COUNTRY_CODE"},
		{"webhook_secret", "WHATSAPP_WEBHOOK_SECRET"},
		{"webhook_verify_token", "WHATSAPP_WEBHOOK_VERIFY_TOKEN"},
	},
	"fake": {
		{"scenario", "FAKE_SCENARIO"},
		{"latency_ms", "FAKE_LATENCY_MS"},
		{"webhook_secret", "FAKE_WEBHOOK_SECRET"},
	},
}

// Load reads environment variables (and .env when present), overlays the
// YAML file named by SMS_CONFIG_FILE, applies defaults and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.SMS.Default = strings.ToLower(ldr.getString("SMS_PROVIDER", "fake", false))
	cfg.SMS.Queue = ldr.getBool("SMS_QUEUE", false, false)
	cfg.SMS.RandomDrivers = ldr.getStringSlice("SMS_RANDOM_DRIVERS", "twilio,msg91", false)
	cfg.SMS.Providers = envProviders()

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", "", false)
	cfg.Kafka.JobTopic = ldr.getString("KAFKA_JOB_TOPIC", "sms.jobs", false)
	cfg.Kafka.EventTopic = ldr.getString("KAFKA_EVENT_TOPIC", "sms.events", false)
	cfg.Kafka.WebhookTopic = ldr.getString("KAFKA_WEBHOOK_TOPIC", "sms.webhooks", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_DLQ_TOPIC", "sms.dlq", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "sms-worker", false)

	cfg.Redis.Addr = ldr.getString("REDIS_ADDR", "", false)
	cfg.Redis.Password = ldr.getString("REDIS_PASSWORD", "", false)
	cfg.Redis.DB = ldr.getInt("REDIS_DB", 0, false)
	cfg.Redis.DelayKey = ldr.getString("REDIS_DELAY_KEY", "sms:delayed", false)
	cfg.Redis.PollInterval = time.Duration(ldr.getInt("REDIS_POLL_INTERVAL_MS", 1000, false)) * time.Millisecond

	cfg.Retry.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", jobs.DefaultMaxAttempts, false)
	cfg.Retry.Backoff = ldr.getDurations("RETRY_BACKOFF", "10s,30s,60s")
	cfg.Retry.WorkerConcurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	cfg.Retry.MaxPayloadBytes = ldr.getInt("JOB_MAX_BYTES", 64*1024, false)
	cfg.Retry.JobTimeoutSeconds = ldr.getInt("JOB_TIMEOUT_SECONDS", int(jobs.DefaultTimeout/time.Second), false)

	cfg.Timeouts.ProviderTimeoutSeconds = ldr.getInt("PROVIDER_TIMEOUT_SECONDS", 30, false)
	cfg.Breaker.Enabled = ldr.getBool("BREAKER_ENABLED", true, false)

	if path := ldr.getString("SMS_CONFIG_FILE", "", false); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			ldr.addError(err.Error())
		} else {
			file.apply(&cfg.SMS)
		}
	}

	cfg.check(ldr)
	if err := ldr.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) check(l *envLoader) {
	if c.Retry.MaxAttempts < 1 {
		l.addError("MAX_ATTEMPTS must be >= 1")
	}
	if c.Retry.WorkerConcurrency < 1 {
		l.addError("WORKER_CONCURRENCY must be >= 1")
	}
	if c.Retry.JobTimeoutSeconds < 1 {
		l.addError("JOB_TIMEOUT_SECONDS must be >= 1")
	}
	if c.Timeouts.ProviderTimeoutSeconds < 1 {
		l.addError("PROVIDER_TIMEOUT_SECONDS must be >= 1")
	}
	if c.Redis.PollInterval <= 0 {
		l.addError("REDIS_POLL_INTERVAL_MS must be > 0")
	}
	if c.SMS.Default == "" {
		l.addError("SMS_PROVIDER is required")
	}
}

// envProviders collects provider configs from the environment. A provider
// is included when at least one of its variables is set.
func envProviders() map[string]common.ProviderConfig {
	out := make(map[string]common.ProviderConfig)
	names := make([]string, 0, len(providerEnv))
	for name := range providerEnv {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := common.ProviderConfig{}
		for _, pair := range providerEnv[name] {
			if v := strings.TrimSpace(os.Getenv(pair[1])); v != "" {
				pc[pair[0]] = v
			}
		}
		if len(pc) > 0 {
			out[name] = pc
		}
	}
	return out
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string, required bool) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		if val = strings.TrimSpace(val); val != "" {
			return val, true
		}
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return "", false
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key, required); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key, def string, required bool) []string {
	return splitList(l.getString(key, def, required))
}

func (l *envLoader) getDurations(key, def string) []time.Duration {
	out, err := util.ParseDurations(l.getString(key, def, false))
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a list of durations", key))
		return nil
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}

func splitList(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
