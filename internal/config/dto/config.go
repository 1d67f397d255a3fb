// Package dto holds the mapstructure-tagged configuration tree.
package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Record        RecordConfig        `mapstructure:"record"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers      []string       `mapstructure:"bootstrap_servers"`
	ClientID              string         `mapstructure:"client_id"`
	SecurityProtocol      string         `mapstructure:"security_protocol"`
	SASLMechanism         string         `mapstructure:"sasl_mechanism"`
	SASLUsername          string         `mapstructure:"sasl_username"`
	SASLPassword          string         `mapstructure:"sasl_password"`
	AWSRegion             string         `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool           `mapstructure:"tls_insecure_skip_verify"`
	Consumer              ConsumerConfig `mapstructure:"consumer"`
	DLQ                   DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
	BatchSize           int      `mapstructure:"batch_size"`
	ReceiveTimeoutMS    int      `mapstructure:"receive_timeout_ms"`
	DecodeCloudEvents   bool     `mapstructure:"decode_cloudevents"`
}

// ReceiveTimeout returns the idle interval after which an empty batch is sent.
func (c ConsumerConfig) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	BasePath    string      `mapstructure:"base_path"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RecordConfig controls the persisted record layout
type RecordConfig struct {
	Format         string   `mapstructure:"format"`
	Fields         []string `mapstructure:"fields"`
	PropertiesKey  string   `mapstructure:"properties_key"`
	IncludeOffset  bool     `mapstructure:"include_offset"`
	IncludePayload bool     `mapstructure:"include_payload"`
}

// ProcessorConfig contains the per-partition engine settings
type ProcessorConfig struct {
	MaxBlocks             int    `mapstructure:"max_blocks"`
	MaxBlockSize          int    `mapstructure:"max_block_size"`
	PoolPolicy            string `mapstructure:"pool_policy"`
	WarningLevel          int    `mapstructure:"warning_level"`
	TripLevel             int    `mapstructure:"trip_level"`
	StallIntervalMS       int    `mapstructure:"stall_interval_ms"`
	LogCooldownIntervalMS int    `mapstructure:"log_cooldown_interval_ms"`
	WriteTimeoutMS        int    `mapstructure:"write_timeout_ms"`
}

// StallInterval returns the wait between flush attempts while stalled.
func (c ProcessorConfig) StallInterval() time.Duration {
	return time.Duration(c.StallIntervalMS) * time.Millisecond
}

// LogCooldownInterval returns the minimum gap between repeated breaker logs.
func (c ProcessorConfig) LogCooldownInterval() time.Duration {
	return time.Duration(c.LogCooldownIntervalMS) * time.Millisecond
}

// WriteTimeout returns the bound on a single write or checkpoint.
func (c ProcessorConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// BlocksPerPartition is the most buffers one partition can hold: the
// current frame plus a full pending queue.
func (c ProcessorConfig) BlocksPerPartition() int {
	return c.TripLevel + 1
}

// RecommendedBlocks returns the pool size at which partitions never wait on
// each other for buffers.
func (c ProcessorConfig) RecommendedBlocks(partitions int) int {
	return partitions * c.BlocksPerPartition()
}

// CheckpointConfig contains the local checkpoint ledger settings
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Sync    bool   `mapstructure:"sync"`
}

// RetryConfig contains blob write retry settings
type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// PoolIntervalMS is how often buffer pool gauges are sampled.
	PoolIntervalMS int `mapstructure:"pool_interval_ms"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns how long shutdown may take before the process exits.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Kafka.Consumer.GroupID == "" {
		return fmt.Errorf("kafka consumer group ID is required")
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage backend is required")
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}

// Validate validates the engine settings.
func (c *ProcessorConfig) Validate() error {
	if c.MaxBlocks < 1 {
		return fmt.Errorf("processor.max_blocks must be at least 1")
	}
	if c.MaxBlockSize < 1 {
		return fmt.Errorf("processor.max_block_size must be at least 1")
	}
	if c.WarningLevel < 1 {
		return fmt.Errorf("processor.warning_level must be at least 1")
	}
	if c.TripLevel <= c.WarningLevel {
		return fmt.Errorf("processor.trip_level (%d) must be greater than processor.warning_level (%d)",
			c.TripLevel, c.WarningLevel)
	}
	if c.StallIntervalMS < 1 {
		return fmt.Errorf("processor.stall_interval_ms must be positive")
	}
	if c.LogCooldownIntervalMS < 0 {
		return fmt.Errorf("processor.log_cooldown_interval_ms must not be negative")
	}
	if c.WriteTimeoutMS < 0 {
		return fmt.Errorf("processor.write_timeout_ms must not be negative")
	}
	if c.MaxBlocks < c.BlocksPerPartition() {
		return fmt.Errorf("processor.max_blocks (%d) cannot hold one partition's frames (%d)",
			c.MaxBlocks, c.BlocksPerPartition())
	}
	switch c.PoolPolicy {
	case "", "block", "fail":
	default:
		return fmt.Errorf("unsupported processor.pool_policy: %s", c.PoolPolicy)
	}
	return nil
}
