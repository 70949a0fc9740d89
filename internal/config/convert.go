// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package config

import (
	"github.com/tomtom215/platewatch/internal/collector"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/eventbus"
	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/markup"
	"github.com/tomtom215/platewatch/internal/ocr"
	"github.com/tomtom215/platewatch/internal/plate"
	"github.com/tomtom215/platewatch/internal/spool"
	"github.com/tomtom215/platewatch/internal/store"
)

// Rules converts the field list into collector rules.
func (c *Config) Rules() []collector.Rule {
	rules := make([]collector.Rule, 0, len(c.Fields))
	for _, f := range c.Fields {
		r := collector.Rule{Field: f.Name, Ordinal: f.Ordinal, Role: collector.Role(f.Role)}
		for _, t := range f.Transforms {
			r.Transforms = append(r.Transforms, collector.Transform(t))
		}
		rules = append(rules, r)
	}
	return rules
}

// PlateSpecs expands presets and appends custom grammars.
func (c *Config) PlateSpecs() ([]plate.Spec, error) {
	var specs []plate.Spec
	for _, name := range c.Plate.Presets {
		ps, err := plate.Preset(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ps...)
	}
	for _, g := range c.Plate.Grammars {
		specs = append(specs, plate.Spec{
			Name:    g.Name,
			Kind:    plate.Kind(g.Kind),
			Length:  g.Length,
			Letters: g.Letters,
			Digits:  g.Digits,
			Pattern: g.Pattern,
		})
	}
	return specs, nil
}

// PlateValidator compiles the configured grammars.
func (c *Config) PlateValidator() (*plate.Validator, error) {
	specs, err := c.PlateSpecs()
	if err != nil {
		return nil, err
	}
	return plate.NewValidatorFromSpecs(specs, plate.Options{Normalize: c.Plate.Normalize})
}

// WindowConfig returns the dedup window settings.
func (c *Config) WindowConfig() dedup.Config {
	return dedup.Config{Capacity: c.Dedup.Capacity, TTL: c.Dedup.TTL}
}

// PipelineConfig returns the ingest pipeline settings. It assumes Validate
// has passed.
func (c *Config) PipelineConfig() ingest.Config {
	role, _ := c.KeyRole()
	return ingest.Config{
		Envelope: c.Extract.Envelope,
		Rules:    c.Rules(),
		Markup: markup.Options{
			TrimText:   c.Extract.TrimText,
			MaxNameLen: c.Extract.MaxTagName,
		},
		DeviceKeyRole:   role,
		DispatchTimeout: c.Ingest.DispatchTimeout,
		CommitPolicy:    ingest.CommitPolicy(c.Dedup.CommitPolicy),
		Breaker: ingest.BreakerConfig{
			Name:             "inserter",
			MaxRequests:      c.Ingest.BreakerMaxRequests,
			Interval:         c.Ingest.BreakerInterval,
			Timeout:          c.Ingest.BreakerTimeout,
			FailureThreshold: c.Ingest.BreakerFailureThreshold,
		},
	}
}

// OCRConfig returns the recognizer settings.
func (c *Config) OCRConfig() ocr.Config {
	return ocr.Config{
		Binary:         c.OCR.Binary,
		Language:       c.OCR.Language,
		Threshold:      c.OCR.Threshold,
		Timeout:        c.OCR.Timeout,
		Rate:           c.OCR.Rate,
		Burst:          c.OCR.Burst,
		CameraNoLength: c.OCR.CameraNoLength,
	}
}

// StoreConfig returns the DuckDB settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Path:        c.Database.Path,
		MaxMemory:   c.Database.MaxMemory,
		Threads:     c.Database.Threads,
		StoreImages: c.Database.StoreImages,
	}
}

// SpoolConfig returns the spool settings with BadgerDB tuning defaults.
func (c *Config) SpoolConfig() spool.Config {
	cfg := spool.DefaultConfig()
	cfg.Enabled = c.Spool.Enabled
	cfg.Path = c.Spool.Path
	cfg.SyncWrites = c.Spool.SyncWrites
	cfg.RetryInterval = c.Spool.RetryInterval
	cfg.MaxAttempts = c.Spool.MaxAttempts
	return cfg
}

// BusConfig returns the event bus settings with reconnect defaults.
func (c *Config) BusConfig() eventbus.Config {
	cfg := eventbus.DefaultConfig()
	cfg.Enabled = c.NATS.Enabled
	cfg.URL = c.NATS.URL
	cfg.SubjectPrefix = c.NATS.SubjectPrefix
	cfg.JetStream = c.NATS.JetStream
	return cfg
}

// LoggingConfig returns the logger settings. Output defaults to stderr.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
	}
}
