package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jittakal/kafcoldstore/internal/breaker"
	"github.com/jittakal/kafcoldstore/internal/buffer"
	"github.com/jittakal/kafcoldstore/internal/checkpoint"
	"github.com/jittakal/kafcoldstore/internal/config/dto"
	"github.com/jittakal/kafcoldstore/internal/encoder"
	"github.com/jittakal/kafcoldstore/internal/kafka"
	"github.com/jittakal/kafcoldstore/internal/observability"
	"github.com/jittakal/kafcoldstore/internal/processor"
	"github.com/jittakal/kafcoldstore/internal/server"
	"github.com/jittakal/kafcoldstore/internal/storage"
	"github.com/jittakal/kafcoldstore/pkg/consumer"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

// run wires the engine and blocks until ctx is cancelled or the host fails.
func run(ctx context.Context, cfg *dto.ApplicationConfig) error {
	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
	})
	sarama.Logger = observability.NewStdLogger(logger, "sarama", slog.LevelDebug)
	logger.Info("starting kafka cold store",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Track cleanup functions, run in reverse order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	// Buffer pool shared by every partition
	policy, err := buffer.ParsePolicy(cfg.Processor.PoolPolicy)
	if err != nil {
		return err
	}
	pool, err := buffer.NewPool(cfg.Processor.MaxBlocks, cfg.Processor.MaxBlockSize, policy)
	if err != nil {
		return fmt.Errorf("failed to create buffer pool: %w", err)
	}
	go observePool(ctx, pool, metrics, time.Duration(cfg.Observability.Metrics.PoolIntervalMS)*time.Millisecond)

	// Record encoder
	format := event.RecordFormat(cfg.Record.Format)
	enc, err := encoder.NewFactory(format, encoder.RecordConfig{
		Fields:         cfg.Record.Fields,
		PropertiesKey:  cfg.Record.PropertiesKey,
		IncludeOffset:  cfg.Record.IncludeOffset,
		IncludePayload: cfg.Record.IncludePayload,
	}).CreateEncoder()
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	// Storage
	compression, err := storage.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return err
	}
	backendConfig := newBackendConfig(cfg)
	backend, err := storage.NewBackend(ctx, backendConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", cfg.Storage.Backend, err)
	}
	addCleanup("storage-backend", backend.Close)

	router := storage.NewBackendRouter(backendConfig, format.Extension()+compression.Extension())
	writers := storage.NewWriterFactory(backend, router, storage.WriterConfig{
		Compression: compression,
		Retry: storage.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
			Multiplier:      cfg.Retry.BackoffMultiplier,
		},
	}, logger, metrics)

	// Local checkpoint ledger
	var ledger kafka.Ledger
	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.Open(checkpoint.Options{Dir: cfg.Checkpoint.Dir, Sync: cfg.Checkpoint.Sync}, logger)
		if err != nil {
			return err
		}
		addCleanup("checkpoint-ledger", store.Close)
		ledger = store
	}

	consumerConfig := newConsumerConfig(cfg)

	// Dead letter queue for undecodable events
	dlqPublisher, err := kafka.NewDLQPublisher(consumerConfig, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		MaxRetries:  cfg.Kafka.DLQ.MaxRetries,
	}, logger, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlqPublisher.Close)

	var opts []processor.Option
	if cfg.Kafka.DLQ.Enabled {
		opts = append(opts, processor.WithDLQ(dlqPublisher))
	}
	factory, err := processor.NewFactory(
		processor.Config{
			MaxFrameSize: cfg.Processor.MaxBlockSize,
			Breaker: breaker.Config{
				WarningLevel:        cfg.Processor.WarningLevel,
				TripLevel:           cfg.Processor.TripLevel,
				StallInterval:       cfg.Processor.StallInterval(),
				LogCooldownInterval: cfg.Processor.LogCooldownInterval(),
			},
			WriteTimeout: cfg.Processor.WriteTimeout(),
		},
		pool,
		enc,
		writers,
		func(partitionID event.PartitionID) consumer.Instrumentation {
			return metrics.ForPartition(partitionID)
		},
		logger,
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create processor factory: %w", err)
	}

	host, err := kafka.NewHost(consumerConfig, factory, ledger, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create kafka host: %w", err)
	}
	addCleanup("kafka-host", host.Close)

	// Start HTTP server
	checker := server.NewEngineChecker(factory, host)
	var metricsRegistry *prometheus.Registry
	if cfg.Observability.Metrics.Enabled {
		metricsRegistry = registry
	}
	httpServer := server.NewServer(server.Config{
		Port:          cfg.Observability.Health.Port,
		LivenessPath:  cfg.Observability.Health.LivenessPath,
		ReadinessPath: cfg.Observability.Health.ReadinessPath,
		MetricsPath:   cfg.Observability.Metrics.Path,
	}, checker, metricsRegistry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	logger.Info("application started successfully",
		"topics", cfg.Kafka.Consumer.Topics,
		"storage", backend.Name(),
		"pool_blocks", cfg.Processor.MaxBlocks,
	)

	hostErr := make(chan error, 1)
	go func() {
		hostErr <- host.Run(ctx)
	}()

	select {
	case err := <-hostErr:
		checker.MarkStopping()
		if err != nil {
			logger.Error("kafka host failed", "error", err)
			return err
		}
		logger.Info("kafka host stopped")
		return nil
	case <-ctx.Done():
		logger.Info("received termination signal")
	}

	// Graceful shutdown: owned partitions flush before their claims are released
	checker.MarkStopping()
	logger.Info("initiating graceful shutdown", "grace_period", cfg.Shutdown.GracePeriod())

	timer := time.NewTimer(cfg.Shutdown.GracePeriod())
	defer timer.Stop()

	select {
	case err := <-hostErr:
		if err != nil {
			logger.Error("kafka host stopped with error", "error", err)
			return err
		}
	case <-timer.C:
		return errors.New("graceful shutdown timed out; unflushed partitions will be redelivered")
	}

	logger.Info("application stopped successfully")
	return nil
}

func newConsumerConfig(cfg *dto.ApplicationConfig) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		BootstrapServers:      cfg.Kafka.BootstrapServers,
		Topics:                cfg.Kafka.Consumer.Topics,
		GroupID:               cfg.Kafka.Consumer.GroupID,
		ClientID:              cfg.Kafka.ClientID,
		SecurityProtocol:      cfg.Kafka.SecurityProtocol,
		SASLMechanism:         cfg.Kafka.SASLMechanism,
		SASLUsername:          cfg.Kafka.SASLUsername,
		SASLPassword:          cfg.Kafka.SASLPassword,
		AWSRegion:             cfg.Kafka.AWSRegion,
		TLSInsecureSkipVerify: cfg.Kafka.TLSInsecureSkipVerify,
		AutoOffsetReset:       cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:     cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:      cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS:   cfg.Kafka.Consumer.HeartbeatIntervalMS,
		BatchSize:             cfg.Kafka.Consumer.BatchSize,
		ReceiveTimeout:        cfg.Kafka.Consumer.ReceiveTimeout(),
		DecodeCloudEvents:     cfg.Kafka.Consumer.DecodeCloudEvents,
	}
}

func newBackendConfig(cfg *dto.ApplicationConfig) storage.BackendConfig {
	accountKey := cfg.Storage.Azure.AccountKey
	if accountKey == "" {
		accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
	}
	credentialsJSON := cfg.Storage.GCS.CredentialsJSON
	if credentialsJSON == "" {
		credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
	}

	return storage.BackendConfig{
		Type:     cfg.Storage.Backend,
		BasePath: cfg.Storage.BasePath,
		File:     storage.FileConfig{BasePath: cfg.Storage.File.BasePath},
		S3: storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		},
		Azure: storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		},
		GCS: storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		},
	}
}

// observePool samples buffer pool usage until ctx ends.
func observePool(ctx context.Context, pool *buffer.Pool, metrics *observability.Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		metrics.ObservePool(pool.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
