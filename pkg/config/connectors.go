// Package config provides connector-specific configurations used by DestinationConfig
package config

import (
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

const (
	// DestinationJSONL selects the local JSONL file connector
	DestinationJSONL = "jsonl"
	// DestinationSQLite selects the SQLite connector
	DestinationSQLite = "sqlite"
)

// DestinationConfig selects a connector and carries its settings.
type DestinationConfig struct {
	Type string `yaml:"type" json:"type"`

	JSONL  JSONLConfig  `yaml:"jsonl" json:"jsonl"`
	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`
}

// JSONLConfig contains configuration for the JSONL destination connector
type JSONLConfig struct {
	// OutputDir receives one directory per stream
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// Compression is applied to committed part files
	Compression string `yaml:"compression" json:"compression"`
}

// SQLiteConfig contains configuration for the SQLite destination connector
type SQLiteConfig struct {
	// Path of the database file
	Path string `yaml:"path" json:"path"`
	// TablePrefix is prepended to every final table name
	TablePrefix string `yaml:"table_prefix" json:"table_prefix"`
}

// Validate checks that the selected connector is known and configured
func (d *DestinationConfig) Validate() error {
	switch d.Type {
	case DestinationJSONL:
		if d.JSONL.OutputDir == "" {
			return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination.jsonl.output_dir is required")
		}
	case DestinationSQLite:
		if d.SQLite.Path == "" {
			return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination.sqlite.path is required")
		}
	case "":
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination.type is required")
	default:
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "unknown destination type").
			WithDetail("type", d.Type)
	}
	return nil
}
