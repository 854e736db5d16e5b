package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/metrics"
)

// Config holds process-wide configuration for AutoWeave's job-queue core,
// mirroring the recognized option set of spec.md §6.
type Config struct {
	RedisURL string

	// Queues is the static queue list, normally loaded from a YAML
	// overlay (see queues_yaml.go) since the env-var layer alone can't
	// express a list of queues with per-queue pool sizes.
	Queues []QueueConfig

	DefaultWorkerPool WorkerPoolConfig
	Monitoring        MonitoringConfig
	Health            HealthConfig
	Security          SecurityConfig
	USBBridge         USBBridgeConfig

	Logging *logger.Config
}

// QueueConfig is one entry of the `queues:` list: a name, its default job
// options, and an optional worker-pool override.
type QueueConfig struct {
	Name              string
	DefaultPriority   int
	DefaultMaxRetries int
	DefaultTimeoutMs  int64
	WorkerPool        *WorkerPoolConfig
}

// MonitoringConfig mirrors spec.md §6's `monitoring` option group.
type MonitoringConfig struct {
	Enabled         bool
	MetricsInterval time.Duration
	RetentionDays   int
	Alerting        metrics.AlertThresholds
}

// HealthConfig mirrors spec.md §6's `health` option group.
type HealthConfig struct {
	CheckInterval time.Duration
	Timeout       time.Duration
	Retries       int
}

// SecurityConfig mirrors spec.md §6's `security` option group. Plugin
// sandboxing internals are out of scope (spec.md §1); this struct only
// carries the configuration surface a processor may consult.
type SecurityConfig struct {
	DefaultSandbox string
	TrustedPlugins []string
	ResourceLimits map[string]string
}

// USBBridgeConfig mirrors spec.md §6's `usbBridge` option group.
type USBBridgeConfig struct {
	Enabled           bool
	StreamName        string
	ConsumerGroup     string
	ConsumerName      string
	BatchSize         int64
	PollInterval      time.Duration
	MaxRetries        int
	ProcessingTimeout time.Duration
	PluginFiltering   bool
}

// LoadConfig loads configuration from environment variables, optionally
// overlaying a `queues:` YAML file named by QUEUES_CONFIG_PATH.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		DefaultWorkerPool: loadDefaultWorkerPoolConfig(),
		Monitoring: MonitoringConfig{
			Enabled:         getEnvAsBool("MONITORING_ENABLED", true),
			MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", 10*time.Second),
			RetentionDays:   getEnvAsInt("METRICS_RETENTION_DAYS", 7),
			Alerting:        metrics.DefaultAlertThresholds(),
		},
		Health: HealthConfig{
			CheckInterval: getEnvAsDuration("HEALTH_CHECK_INTERVAL", 5*time.Second),
			Timeout:       getEnvAsDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second),
			Retries:       getEnvAsInt("HEALTH_CHECK_RETRIES", 3),
		},
		Security: SecurityConfig{
			DefaultSandbox: getEnv("SECURITY_DEFAULT_SANDBOX", "restricted"),
			TrustedPlugins: getEnvAsStringSlice("SECURITY_TRUSTED_PLUGINS", nil),
			ResourceLimits: map[string]string{},
		},
		USBBridge: USBBridgeConfig{
			Enabled:           getEnvAsBool("USB_BRIDGE_ENABLED", true),
			StreamName:        getEnv("USB_BRIDGE_STREAM", "aw:hotplug"),
			ConsumerGroup:     getEnv("USB_BRIDGE_CONSUMER_GROUP", "job-queue"),
			ConsumerName:      getEnv("USB_BRIDGE_CONSUMER_NAME", ""),
			BatchSize:         int64(getEnvAsInt("USB_BRIDGE_BATCH_SIZE", 10)),
			PollInterval:      getEnvAsDuration("USB_BRIDGE_POLL_INTERVAL", 500*time.Millisecond),
			MaxRetries:        getEnvAsInt("USB_BRIDGE_MAX_RETRIES", 3),
			ProcessingTimeout: getEnvAsDuration("USB_BRIDGE_PROCESSING_TIMEOUT", 5*time.Second),
			PluginFiltering:   getEnvAsBool("USB_BRIDGE_PLUGIN_FILTERING", false),
		},
		Logging: loadLoggingConfig(),
	}

	if path := getEnv("QUEUES_CONFIG_PATH", ""); path != "" {
		queues, err := LoadQueuesYAML(path, cfg.DefaultWorkerPool)
		if err != nil {
			return nil, fmt.Errorf("failed to load queues config: %w", err)
		}
		cfg.Queues = queues
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []QueueConfig{{Name: "default", DefaultPriority: 5, DefaultMaxRetries: 3, DefaultTimeoutMs: 30000}}
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if err := cfg.DefaultWorkerPool.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default worker pool config: %w", err)
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/autoweave/jobqueue.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	cfg.Elasticsearch.Enabled = getEnvAsBool("LOG_ES_ENABLED", false)
	cfg.Elasticsearch.Mode = getEnv("LOG_ES_MODE", "self-managed")
	cfg.Elasticsearch.Addresses = getEnvAsStringSlice("LOG_ES_ADDRESSES", []string{"http://localhost:9200"})
	cfg.Elasticsearch.Username = getEnv("LOG_ES_USERNAME", "")
	cfg.Elasticsearch.Password = getEnv("LOG_ES_PASSWORD", "")
	cfg.Elasticsearch.CloudID = getEnv("LOG_ES_CLOUD_ID", "")
	cfg.Elasticsearch.APIKey = getEnv("LOG_ES_API_KEY", "")
	cfg.Elasticsearch.IndexPrefix = getEnv("LOG_ES_INDEX_PREFIX", "autoweave-logs")
	cfg.Elasticsearch.BulkSize = getEnvAsInt("LOG_ES_BULK_SIZE", 100)
	cfg.Elasticsearch.FlushInterval = getEnvAsDuration("LOG_ES_FLUSH_INTERVAL", 5*time.Second)
	cfg.Elasticsearch.Workers = getEnvAsInt("LOG_ES_WORKERS", 2)
	cfg.Elasticsearch.MaxRetries = getEnvAsInt("LOG_ES_MAX_RETRIES", 3)
	cfg.Elasticsearch.RetryBackoff = getEnvAsDuration("LOG_ES_RETRY_BACKOFF", 1*time.Second)
	cfg.Elasticsearch.CircuitBreaker = getEnvAsBool("LOG_ES_CIRCUIT_BREAKER", true)
	cfg.Elasticsearch.FailureThreshold = getEnvAsInt("LOG_ES_FAILURE_THRESHOLD", 5)
	cfg.Elasticsearch.ResetTimeout = getEnvAsDuration("LOG_ES_RESET_TIMEOUT", 30*time.Second)

	return cfg
}
