// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/platewatch/internal/collector"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/plate"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/platewatch/config.yaml",
	"/etc/platewatch/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the defaults applied before file and env layers.
func defaultConfig() *Config {
	fields := make([]FieldConfig, 0, len(collector.DefaultRules()))
	for _, r := range collector.DefaultRules() {
		fc := FieldConfig{Name: r.Field, Ordinal: r.Ordinal, Role: string(r.Role), Transforms: []string{}}
		for _, t := range r.Transforms {
			fc.Transforms = append(fc.Transforms, string(t))
		}
		fields = append(fields, fc)
	}

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3065,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    16 << 20,
		},
		Extract: ExtractConfig{
			Envelope:   collector.DefaultEnvelope,
			TrimText:   true,
			MaxTagName: 256,
		},
		Fields: fields,
		Plate: PlateConfig{
			Normalize: true,
			Presets:   []string{plate.PresetDefault},
			Grammars:  []GrammarConfig{},
		},
		Dedup: DedupConfig{
			Capacity:      dedup.DefaultCapacity,
			TTL:           0,
			SweepInterval: time.Minute,
			KeyField:      "sn",
			CommitPolicy:  "before_write",
		},
		Ingest: IngestConfig{
			DispatchTimeout:         5 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
			BreakerInterval:         time.Minute,
			BreakerMaxRequests:      1,
		},
		OCR: OCRConfig{
			Enabled:        false,
			Binary:         "tesseract",
			Language:       "eng",
			Threshold:      200,
			Timeout:        10 * time.Second,
			Rate:           2,
			Burst:          4,
			CameraNoLength: 7,
		},
		Database: DatabaseConfig{
			Path:           "/data/platewatch.duckdb",
			MaxMemory:      "512MB",
			Threads:        0,
			StoreImages:    true,
			ImageCacheSize: 256,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "platewatch",
			JetStream:     false,
		},
		Spool: SpoolConfig{
			Enabled:       false,
			Path:          "/data/spool",
			SyncWrites:    true,
			RetryInterval: 30 * time.Second,
			MaxAttempts:   100,
		},
		Security: SecurityConfig{
			CORSOrigins:         []string{},
			RateLimitReqs:       100,
			RateLimitWindow:     time.Minute,
			IngestRateLimitReqs: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: struct defaults, then the YAML file if
// one is found, then mapped environment variables. The result is
// validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first
// default path found, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as env strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"plate.presets",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables (lower-cased) to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"max_body_bytes":        "server.max_body_bytes",

	"envelope_tag": "extract.envelope",
	"trim_text":    "extract.trim_text",
	"max_tag_name": "extract.max_tag_name",

	"plate_normalize": "plate.normalize",
	"plate_presets":   "plate.presets",

	"dedup_capacity":       "dedup.capacity",
	"dedup_ttl":            "dedup.ttl",
	"dedup_sweep_interval": "dedup.sweep_interval",
	"dedup_key_field":      "dedup.key_field",
	"dedup_commit_policy":  "dedup.commit_policy",

	"dispatch_timeout":          "ingest.dispatch_timeout",
	"breaker_failure_threshold": "ingest.breaker_failure_threshold",
	"breaker_timeout":           "ingest.breaker_timeout",
	"breaker_interval":          "ingest.breaker_interval",
	"breaker_max_requests":      "ingest.breaker_max_requests",

	"ocr_enabled":          "ocr.enabled",
	"ocr_binary":           "ocr.binary",
	"ocr_language":         "ocr.language",
	"ocr_threshold":        "ocr.threshold",
	"ocr_timeout":          "ocr.timeout",
	"ocr_rate":             "ocr.rate",
	"ocr_burst":            "ocr.burst",
	"ocr_camera_no_length": "ocr.camera_no_length",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"store_images":      "database.store_images",
	"image_cache_size":  "database.image_cache_size",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_subject_prefix": "nats.subject_prefix",
	"nats_jetstream":      "nats.jetstream",

	"spool_enabled":        "spool.enabled",
	"spool_path":           "spool.path",
	"spool_sync_writes":    "spool.sync_writes",
	"spool_retry_interval": "spool.retry_interval",
	"spool_max_attempts":   "spool.max_attempts",

	"cors_origins":               "security.cors_origins",
	"rate_limit_requests":        "security.rate_limit_requests",
	"rate_limit_window":          "security.rate_limit_window",
	"ingest_rate_limit_requests": "security.ingest_rate_limit_requests",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a config path.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DEDUP_CAPACITY -> dedup.capacity
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
