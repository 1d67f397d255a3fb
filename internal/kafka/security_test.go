package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestConfigureSecurity(t *testing.T) {
	tests := []struct {
		name      string
		config    ConsumerConfig
		wantErr   bool
		wantSASL  bool
		wantTLS   bool
		mechanism sarama.SASLMechanism
	}{
		{name: "plaintext", config: ConsumerConfig{SecurityProtocol: "PLAINTEXT"}},
		{name: "empty defaults to plaintext", config: ConsumerConfig{}},
		{name: "ssl", config: ConsumerConfig{SecurityProtocol: "SSL"}, wantTLS: true},
		{
			name:      "sasl plain",
			config:    ConsumerConfig{SecurityProtocol: "SASL_PLAINTEXT", SASLMechanism: "PLAIN", SASLUsername: "u", SASLPassword: "p"},
			wantSASL:  true,
			mechanism: sarama.SASLTypePlaintext,
		},
		{
			name:      "scram-sha-512 over tls",
			config:    ConsumerConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "SCRAM-SHA-512", SASLUsername: "u", SASLPassword: "p"},
			wantSASL:  true,
			wantTLS:   true,
			mechanism: sarama.SASLTypeSCRAMSHA512,
		},
		{
			name:      "msk iam",
			config:    ConsumerConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "AWS_MSK_IAM", AWSRegion: "eu-west-1"},
			wantSASL:  true,
			wantTLS:   true,
			mechanism: sarama.SASLTypeOAuth,
		},
		{name: "msk iam without region", config: ConsumerConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "AWS_MSK_IAM"}, wantErr: true},
		{name: "unknown mechanism", config: ConsumerConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "GSSAPI"}, wantErr: true},
		{name: "unknown protocol", config: ConsumerConfig{SecurityProtocol: "TLS"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sarama.NewConfig()
			err := configureSecurity(cfg, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configureSecurity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Net.SASL.Enable != tt.wantSASL {
				t.Errorf("SASL.Enable = %v, want %v", cfg.Net.SASL.Enable, tt.wantSASL)
			}
			if cfg.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS.Enable = %v, want %v", cfg.Net.TLS.Enable, tt.wantTLS)
			}
			if tt.wantSASL && cfg.Net.SASL.Mechanism != tt.mechanism {
				t.Errorf("SASL.Mechanism = %v, want %v", cfg.Net.SASL.Mechanism, tt.mechanism)
			}
		})
	}
}

func TestConfigureSecurity_SCRAMGenerator(t *testing.T) {
	cfg := sarama.NewConfig()
	err := configureSecurity(cfg, ConsumerConfig{
		SecurityProtocol: "SASL_PLAINTEXT",
		SASLMechanism:    "SCRAM-SHA-256",
		SASLUsername:     "u",
		SASLPassword:     "p",
	})
	if err != nil {
		t.Fatalf("configureSecurity() error = %v", err)
	}

	if cfg.Net.SASL.SCRAMClientGeneratorFunc == nil {
		t.Fatal("SCRAMClientGeneratorFunc is nil")
	}
	// each connection needs its own client
	if a, b := cfg.Net.SASL.SCRAMClientGeneratorFunc(), cfg.Net.SASL.SCRAMClientGeneratorFunc(); a == b {
		t.Error("SCRAMClientGeneratorFunc() returned the same client twice")
	}
}

func TestNewSaramaConfig(t *testing.T) {
	cfg, err := newSaramaConfig(ConsumerConfig{
		ClientID:            "kafcoldstore",
		AutoOffsetReset:     "earliest",
		SessionTimeoutMS:    10000,
		HeartbeatIntervalMS: 3000,
	})
	if err != nil {
		t.Fatalf("newSaramaConfig() error = %v", err)
	}

	if cfg.ClientID != "kafcoldstore" {
		t.Errorf("ClientID = %v, want kafcoldstore", cfg.ClientID)
	}
	if cfg.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Errorf("Offsets.Initial = %v, want %v", cfg.Consumer.Offsets.Initial, sarama.OffsetOldest)
	}
	// offsets are committed only after durable writes
	if cfg.Consumer.Offsets.AutoCommit.Enable {
		t.Error("Offsets.AutoCommit.Enable = true, want false")
	}
	if cfg.Consumer.Group.Session.Timeout != 10*time.Second {
		t.Errorf("Session.Timeout = %v, want 10s", cfg.Consumer.Group.Session.Timeout)
	}
	if cfg.Consumer.Group.Heartbeat.Interval != 3*time.Second {
		t.Errorf("Heartbeat.Interval = %v, want 3s", cfg.Consumer.Group.Heartbeat.Interval)
	}
	if cfg.Consumer.MaxProcessingTime != 5*time.Minute {
		t.Errorf("MaxProcessingTime = %v, want 5m", cfg.Consumer.MaxProcessingTime)
	}
	if !cfg.Consumer.Return.Errors {
		t.Error("Return.Errors = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestOffsetInitial(t *testing.T) {
	tests := []struct {
		reset string
		want  int64
	}{
		{"earliest", sarama.OffsetOldest},
		{"latest", sarama.OffsetNewest},
		{"", sarama.OffsetNewest},
	}

	for _, tt := range tests {
		if got := offsetInitial(tt.reset); got != tt.want {
			t.Errorf("offsetInitial(%q) = %v, want %v", tt.reset, got, tt.want)
		}
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	var cfg ConsumerConfig
	if got := cfg.batchSize(); got != defaultBatchSize {
		t.Errorf("batchSize() = %v, want %v", got, defaultBatchSize)
	}
	if got := cfg.receiveTimeout(); got != defaultReceiveTimeout {
		t.Errorf("receiveTimeout() = %v, want %v", got, defaultReceiveTimeout)
	}

	cfg = ConsumerConfig{BatchSize: 10, ReceiveTimeout: time.Second}
	if got := cfg.batchSize(); got != 10 {
		t.Errorf("batchSize() = %v, want 10", got)
	}
	if got := cfg.receiveTimeout(); got != time.Second {
		t.Errorf("receiveTimeout() = %v, want 1s", got)
	}
}
