// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package config loads platewatch configuration from defaults, an optional
// YAML file and environment variables, in increasing priority.
//
// Configuration is read once at startup and never hot-reloaded.
package config

import (
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Extract  ExtractConfig  `koanf:"extract"`
	Fields   []FieldConfig  `koanf:"fields" validate:"min=1,dive"`
	Plate    PlateConfig    `koanf:"plate"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Ingest   IngestConfig   `koanf:"ingest"`
	OCR      OCRConfig      `koanf:"ocr"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	Spool    SpoolConfig    `koanf:"spool"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// MaxBodyBytes caps one camera payload.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"min=1024"`
}

// ExtractConfig configures the markup tokenizer and the envelope tag.
type ExtractConfig struct {
	Envelope   string `koanf:"envelope" validate:"required,xmlname"`
	TrimText   bool   `koanf:"trim_text"`
	MaxTagName int    `koanf:"max_tag_name" validate:"min=16,max=4096"`
}

// FieldConfig selects one field occurrence inside the envelope.
type FieldConfig struct {
	Name       string   `koanf:"name" validate:"required,xmlname"`
	Ordinal    int      `koanf:"ordinal" validate:"min=1"`
	Transforms []string `koanf:"transforms" validate:"dive,oneof=trim upper int"`
	Role       string   `koanf:"role" validate:"omitempty,oneof=mac serial device_name plate target_type image"`
}

// GrammarConfig declares a plate grammar.
type GrammarConfig struct {
	Name    string `koanf:"name" validate:"required"`
	Kind    string `koanf:"kind" validate:"oneof=composition positional regexp"`
	Length  int    `koanf:"length" validate:"min=0"`
	Letters int    `koanf:"letters" validate:"min=0"`
	Digits  int    `koanf:"digits" validate:"min=0"`
	Pattern string `koanf:"pattern"`
}

// PlateConfig configures plate validation. Presets are expanded first,
// then Grammars are appended in order.
type PlateConfig struct {
	Normalize bool            `koanf:"normalize"`
	Presets   []string        `koanf:"presets" validate:"dive,oneof=default nl-sidecodes"`
	Grammars  []GrammarConfig `koanf:"grammars" validate:"dive"`
}

// DedupConfig configures the deduplication window.
type DedupConfig struct {
	Capacity      int           `koanf:"capacity" validate:"min=1,max=100000"`
	TTL           time.Duration `koanf:"ttl" validate:"min=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	// KeyField names the field whose value identifies a device.
	KeyField     string `koanf:"key_field" validate:"required"`
	CommitPolicy string `koanf:"commit_policy" validate:"oneof=before_write after_write"`
}

// IngestConfig configures dispatch to persistence.
type IngestConfig struct {
	DispatchTimeout         time.Duration `koanf:"dispatch_timeout" validate:"gt=0"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"min=1"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerInterval         time.Duration `koanf:"breaker_interval" validate:"min=0"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests" validate:"min=1"`
}

// OCRConfig configures camera number recognition.
type OCRConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Binary         string        `koanf:"binary" validate:"required"`
	Language       string        `koanf:"language" validate:"required"`
	Threshold      uint8         `koanf:"threshold"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	Rate           float64       `koanf:"rate" validate:"min=0"`
	Burst          int           `koanf:"burst" validate:"min=1"`
	CameraNoLength int           `koanf:"camera_no_length" validate:"min=0"`
}

// DatabaseConfig configures DuckDB.
type DatabaseConfig struct {
	Path        string `koanf:"path" validate:"required"`
	MaxMemory   string `koanf:"max_memory" validate:"bytesize"`
	Threads     int    `koanf:"threads" validate:"min=0"`
	StoreImages bool   `koanf:"store_images"`
	// ImageCacheSize is the number of snapshots the read API keeps in
	// memory. Zero disables the cache.
	ImageCacheSize int `koanf:"image_cache_size" validate:"min=0,max=100000"`
}

// NATSConfig configures the optional event bus.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url" validate:"required_if=Enabled true"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
	JetStream     bool   `koanf:"jetstream"`
}

// SpoolConfig configures the optional durable spool.
type SpoolConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path" validate:"required_if=Enabled true"`
	SyncWrites    bool          `koanf:"sync_writes"`
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"min=0"`
}

// SecurityConfig configures CORS and rate limiting.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`
	// RateLimitReqs per RateLimitWindow per client IP on the read API.
	// Zero disables limiting.
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	// IngestRateLimitReqs applies the same per-IP limit to camera posts.
	IngestRateLimitReqs int `koanf:"ingest_rate_limit_requests" validate:"min=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"loglevel"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
