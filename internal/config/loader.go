// Package config loads the application configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafcoldstore/internal/config/dto"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafcoldstore")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.client_id", "kafcoldstore")
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.consumer.batch_size", 500)
	l.v.SetDefault("kafka.consumer.receive_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.decode_cloudevents", true)
	l.v.SetDefault("kafka.dlq.enabled", false)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")
	l.v.SetDefault("kafka.dlq.max_retries", 3)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.compression", "none")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// Record defaults
	l.v.SetDefault("record.format", "json")
	l.v.SetDefault("record.fields", []string{"Location", "Time", "Motion", "Hostname"})
	l.v.SetDefault("record.properties_key", "Properties")
	l.v.SetDefault("record.include_offset", false)
	l.v.SetDefault("record.include_payload", false)

	// Processor defaults
	l.v.SetDefault("processor.max_blocks", 256)
	l.v.SetDefault("processor.max_block_size", 1024*1024)
	l.v.SetDefault("processor.pool_policy", "block")
	l.v.SetDefault("processor.warning_level", 10)
	l.v.SetDefault("processor.trip_level", 15)
	l.v.SetDefault("processor.stall_interval_ms", 1000)
	l.v.SetDefault("processor.log_cooldown_interval_ms", 60000)
	l.v.SetDefault("processor.write_timeout_ms", 120000)

	// Checkpoint ledger defaults
	l.v.SetDefault("checkpoint.enabled", false)
	l.v.SetDefault("checkpoint.dir", "data/checkpoints")
	l.v.SetDefault("checkpoint.sync", true)

	// Retry defaults
	l.v.SetDefault("retry.max_attempts", 5)
	l.v.SetDefault("retry.initial_backoff_ms", 100)
	l.v.SetDefault("retry.max_backoff_ms", 30000)
	l.v.SetDefault("retry.backoff_multiplier", 2.0)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.metrics.pool_interval_ms", 5000)
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	if config.Kafka.Consumer.BatchSize < 1 {
		return errors.New("kafka.consumer.batch_size must be at least 1")
	}
	if config.Kafka.Consumer.ReceiveTimeoutMS < 1 {
		return errors.New("kafka.consumer.receive_timeout_ms must be positive")
	}
	if config.Kafka.DLQ.Enabled && config.Kafka.DLQ.TopicSuffix == "" {
		return errors.New("kafka.dlq.topic_suffix is required when the DLQ is enabled")
	}

	// Storage validation
	switch config.Storage.Backend {
	case "s3":
		if err := config.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
	case "azure":
		if err := config.Storage.Azure.Validate(); err != nil {
			return fmt.Errorf("storage.azure: %w", err)
		}
	case "gcs":
		if err := config.Storage.GCS.Validate(); err != nil {
			return fmt.Errorf("storage.gcs: %w", err)
		}
	case "file":
		if err := config.Storage.File.Validate(); err != nil {
			return fmt.Errorf("storage.file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}

	switch config.Storage.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("unsupported storage compression: %s", config.Storage.Compression)
	}

	// Record validation
	if config.Record.Format != "json" && config.Record.Format != "avro-json" {
		return fmt.Errorf("unsupported record format: %s", config.Record.Format)
	}
	if slices.Contains(config.Record.Fields, "") {
		return errors.New("record.fields must not contain empty names")
	}

	// Processor validation
	if err := config.Processor.Validate(); err != nil {
		return err
	}

	if config.Checkpoint.Enabled && config.Checkpoint.Dir == "" {
		return errors.New("checkpoint.dir is required when the checkpoint ledger is enabled")
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", config.Retry.MaxAttempts)
	}

	// Port validation
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
