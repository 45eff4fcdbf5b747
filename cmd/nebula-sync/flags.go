package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/nebula-sync/pkg/config"
)

const envPrefix = "NEBULA_SYNC"

const (
	flagConfig             = "config"
	flagCatalog            = "catalog"
	flagInput              = "input"
	flagRecordBatchSize    = "record-batch-size-bytes"
	flagFlushInterval      = "max-checkpoint-flush-interval"
	flagSpillDir           = "spill-dir"
	flagSpillCompression   = "spill-compression"
	flagLogLevel           = "log-level"
	flagMetricsAddr        = "metrics-addr"
	flagEnableTracing      = "enable-tracing"
	flagDestination        = "destination"
	flagJSONLOutputDir     = "jsonl-output-dir"
	flagSQLitePath         = "sqlite-path"
	flagSQLiteTablePrefix  = "sqlite-table-prefix"
	flagJSONLCompression   = "jsonl-compression"
	flagTracingSampleRate  = "tracing-sample-rate"
	flagSpillQueueCapacity = "spill-queue-capacity"
	flagLogDevelopment     = "log-development"
)

// newViper returns a viper instance reading NEBULA_SYNC_* variables, with
// dashes in flag names mapped to underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags registers the shared flags on cmd and binds them to v. Defaults
// come from config.DefaultSyncConfig so that unset flags never override the
// configuration file.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	defaults := config.DefaultSyncConfig()
	flags := cmd.Flags()

	flags.StringP(flagConfig, "c", "", "Path to the YAML sync configuration")
	flags.String(flagCatalog, "", "Path to the JSON catalog of streams")
	flags.Int64(flagRecordBatchSize, defaults.RecordBatchSizeBytes, "Soft size threshold of a spill file in bytes")
	flags.Duration(flagFlushInterval, defaults.MaxCheckpointFlushInterval, "Force a checkpoint flush after this interval (0 disables)")
	flags.String(flagSpillDir, defaults.Spill.Dir, "Directory for spill files (default: os temp dir)")
	flags.String(flagSpillCompression, defaults.Spill.Compression, "Spill file compression (none, gzip, snappy, s2, lz4, zstd)")
	flags.Int(flagSpillQueueCapacity, defaults.Spill.QueueCapacity, "Buffered records per stream queue")
	flags.String(flagLogLevel, defaults.Logging.Level, "Log level (debug, info, warn, error)")
	flags.Bool(flagLogDevelopment, defaults.Logging.Development, "Human friendly console logs")
	flags.String(flagMetricsAddr, defaults.Observability.MetricsAddr, "Listen address of the /metrics endpoint (empty disables)")
	flags.Bool(flagEnableTracing, defaults.Observability.EnableTracing, "Export task traces to stderr")
	flags.Float64(flagTracingSampleRate, defaults.Observability.TracingSampleRate, "Trace sampling rate (0.0-1.0)")
	flags.String(flagDestination, defaults.Destination.Type, "Destination connector (see 'connectors')")
	flags.String(flagJSONLOutputDir, defaults.Destination.JSONL.OutputDir, "Output directory of the jsonl connector")
	flags.String(flagJSONLCompression, defaults.Destination.JSONL.Compression, "Part file compression of the jsonl connector")
	flags.String(flagSQLitePath, defaults.Destination.SQLite.Path, "Database file of the sqlite connector")
	flags.String(flagSQLiteTablePrefix, defaults.Destination.SQLite.TablePrefix, "Table name prefix of the sqlite connector")

	_ = v.BindPFlags(flags)
}

// loadConfig reads the configuration file named by the config flag, applies
// flags and environment variables that were explicitly set, and validates
// the result.
func loadConfig(v *viper.Viper) (*config.SyncConfig, error) {
	cfg := config.DefaultSyncConfig()
	if path := v.GetString(flagConfig); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	applyOverrides(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(v *viper.Viper, cfg *config.SyncConfig) {
	if v.IsSet(flagRecordBatchSize) {
		cfg.RecordBatchSizeBytes = v.GetInt64(flagRecordBatchSize)
	}
	if v.IsSet(flagFlushInterval) {
		cfg.MaxCheckpointFlushInterval = v.GetDuration(flagFlushInterval)
	}
	if v.IsSet(flagSpillDir) {
		cfg.Spill.Dir = v.GetString(flagSpillDir)
	}
	if v.IsSet(flagSpillCompression) {
		cfg.Spill.Compression = v.GetString(flagSpillCompression)
	}
	if v.IsSet(flagSpillQueueCapacity) {
		cfg.Spill.QueueCapacity = v.GetInt(flagSpillQueueCapacity)
	}
	if v.IsSet(flagLogLevel) {
		cfg.Logging.Level = v.GetString(flagLogLevel)
	}
	if v.IsSet(flagLogDevelopment) {
		cfg.Logging.Development = v.GetBool(flagLogDevelopment)
	}
	if v.IsSet(flagMetricsAddr) {
		cfg.Observability.MetricsAddr = v.GetString(flagMetricsAddr)
	}
	if v.IsSet(flagEnableTracing) {
		cfg.Observability.EnableTracing = v.GetBool(flagEnableTracing)
	}
	if v.IsSet(flagTracingSampleRate) {
		cfg.Observability.TracingSampleRate = v.GetFloat64(flagTracingSampleRate)
	}
	if v.IsSet(flagDestination) {
		cfg.Destination.Type = v.GetString(flagDestination)
	}
	if v.IsSet(flagJSONLOutputDir) {
		cfg.Destination.JSONL.OutputDir = v.GetString(flagJSONLOutputDir)
	}
	if v.IsSet(flagJSONLCompression) {
		cfg.Destination.JSONL.Compression = v.GetString(flagJSONLCompression)
	}
	if v.IsSet(flagSQLitePath) {
		cfg.Destination.SQLite.Path = v.GetString(flagSQLitePath)
	}
	if v.IsSet(flagSQLiteTablePrefix) {
		cfg.Destination.SQLite.TablePrefix = v.GetString(flagSQLiteTablePrefix)
	}
}
