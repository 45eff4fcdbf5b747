// Package config provides configuration management for nebula-sync.
//
// # Key Features
//
// - SyncConfig: single configuration structure for a sync run
// - Structured sections: Spill, Logging, Observability, Destination
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults and validation
//
// # Usage
//
// ## Loading a file on top of the defaults
//
//	cfg, err := config.LoadSyncConfig("sync.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Environment Variable Substitution
//
//	# sync.yaml
//	record_batch_size_bytes: 104857600
//	max_checkpoint_flush_interval: 5m
//	spill:
//	  dir: ${NEBULA_SPILL_DIR}
//	  compression: zstd
//	destination:
//	  type: sqlite
//	  sqlite:
//	    path: ${NEBULA_DB_PATH}
//
// Durations accept Go duration strings. The CLI layers flags and
// NEBULA_SYNC_* environment variables over the file with viper.
package config
