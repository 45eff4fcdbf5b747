// Package config provides the configuration system for nebula-sync.
// It defines a single SyncConfig structure that drives the task engine,
// the local spill layer and the destination connector.
//
// The configuration is organized into logical sections:
//   - Top level: batching thresholds and the checkpoint flush interval
//   - Spill: where and how records are buffered on local disk
//   - Logging: zap logger settings
//   - Observability: metrics endpoint and tracing
//   - Destination: which reference connector to load, and its settings
//
// Example usage:
//
//	cfg := config.DefaultSyncConfig()
//	cfg.RecordBatchSizeBytes = 64 << 20
//	cfg.Destination.Type = "jsonl"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// SyncConfig is the configuration of one sync run.
type SyncConfig struct {
	// Name identifies the sync in logs and metrics
	Name string `yaml:"name" json:"name"`

	// RecordBatchSizeBytes is the soft size threshold at which a spill file
	// is closed and handed off for processing
	RecordBatchSizeBytes int64 `yaml:"record_batch_size_bytes" json:"record_batch_size_bytes"`

	// MaxCheckpointFlushInterval bounds how long a checkpoint may wait before
	// a flush is forced. Zero disables timed flushing.
	MaxCheckpointFlushInterval time.Duration `yaml:"max_checkpoint_flush_interval" json:"max_checkpoint_flush_interval"`

	// Spill configures local record buffering
	Spill SpillConfig `yaml:"spill" json:"spill"`

	// Logging configures the global logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Destination selects and configures the connector
	Destination DestinationConfig `yaml:"destination" json:"destination"`
}

// SpillConfig contains the local buffering settings.
type SpillConfig struct {
	// Dir is the directory spill files are created in (empty = os temp dir)
	Dir string `yaml:"dir" json:"dir"`
	// Compression selects the spill file codec (none, gzip, snappy, s2, lz4, zstd)
	Compression string `yaml:"compression" json:"compression"`
	// QueueCapacity is the buffer of each per-stream record queue
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`
}

// LoggingConfig mirrors logger.Config in file form.
type LoggingConfig struct {
	// Level sets logging verbosity (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding is json or console
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables human friendly output
	Development bool `yaml:"development" json:"development"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// MetricsAddr is the listen address of the /metrics endpoint (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing activates task tracing
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// DefaultSyncConfig creates a new SyncConfig with sensible defaults.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Name:                       "nebula-sync",
		RecordBatchSizeBytes:       200 * 1024 * 1024,
		MaxCheckpointFlushInterval: 15 * time.Minute,
		Spill: SpillConfig{
			Compression:   string(compression.None),
			QueueCapacity: 1000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			EnableTracing:     false,
			TracingSampleRate: 0.1,
		},
		Destination: DestinationConfig{
			Type: "jsonl",
			JSONL: JSONLConfig{
				OutputDir: "./output",
			},
			SQLite: SQLiteConfig{
				Path: "./nebula-sync.db",
			},
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
func (c *SyncConfig) Validate() error {
	if c.RecordBatchSizeBytes <= 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "record_batch_size_bytes must be positive")
	}
	if c.MaxCheckpointFlushInterval < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "max_checkpoint_flush_interval cannot be negative")
	}
	if c.Spill.QueueCapacity < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "spill.queue_capacity cannot be negative")
	}
	if _, err := compression.ParseAlgorithm(c.Spill.Compression); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid spill.compression")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "observability.tracing_sample_rate must be within [0, 1]")
	}
	if err := c.Destination.Validate(); err != nil {
		return err
	}
	return nil
}

// IsTimedFlushEnabled returns true if checkpoints are force flushed on a timer
func (c *SyncConfig) IsTimedFlushEnabled() bool {
	return c.MaxCheckpointFlushInterval > 0
}

// String renders a short summary used in startup logs
func (c *SyncConfig) String() string {
	return fmt.Sprintf("%s(batch=%dB flush=%s destination=%s)",
		c.Name, c.RecordBatchSizeBytes, c.MaxCheckpointFlushInterval, c.Destination.Type)
}
