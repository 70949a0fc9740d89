// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package spool keeps accepted detections on disk until the database
// confirms them. Insert returns once a record is durably queued; a
// background loop retries delivery of anything still pending.
//
// The BadgerDB implementation is compiled with -tags wal. Without the tag
// the spool passes records straight through to its target.
package spool

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/platewatch/internal/ingest"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("spool: closed")
	// ErrNilTarget is returned by Open without a target inserter.
	ErrNilTarget = errors.New("spool: target inserter cannot be nil")
)

// Config configures the spool.
type Config struct {
	Enabled bool
	// Path is the BadgerDB directory.
	Path string
	// SyncWrites fsyncs every queued record.
	SyncWrites bool
	// RetryInterval is the delay between delivery passes.
	RetryInterval time.Duration
	// MaxAttempts moves an entry to the dead letter set after this many
	// failed deliveries. Zero retries forever.
	MaxAttempts int
	// MemTableSize and ValueLogFileSize tune BadgerDB.
	MemTableSize     int64
	ValueLogFileSize int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		Path:             "/data/spool",
		SyncWrites:       true,
		RetryInterval:    30 * time.Second,
		MaxAttempts:      100,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
	}
}

// Stats reports spool counters.
type Stats struct {
	Pending   int64 `json:"pending"`
	Dead      int64 `json:"dead"`
	Queued    int64 `json:"queued"`
	Delivered int64 `json:"delivered"`
	Retries   int64 `json:"retries"`
}

// DrainResult summarizes one delivery pass.
type DrainResult struct {
	Delivered int
	Failed    int
	Dead      int
	Skipped   int
}

// entry is the stored form of a queued record. Record.Image is excluded
// from the record's JSON so it travels separately.
type entry struct {
	Record    ingest.Record `json:"record"`
	Image     []byte        `json:"image,omitempty"`
	QueuedAt  time.Time     `json:"queued_at"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"last_error,omitempty"`
}

func newEntry(rec ingest.Record, now time.Time) *entry {
	return &entry{Record: rec, Image: rec.Image, QueuedAt: now.UTC()}
}

func (e *entry) record() ingest.Record {
	rec := e.Record
	rec.Image = e.Image
	return rec
}

func encodeEntry(e *entry) ([]byte, error) { return json.Marshal(e) }

func decodeEntry(data []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
