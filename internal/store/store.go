// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package store persists accepted detections in DuckDB.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/platewatch/internal/logging"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
	// ErrNotFound is returned when a detection does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Config configures the database.
type Config struct {
	// Path is the database file, or ":memory:".
	Path      string
	MaxMemory string
	// Threads defaults to the number of CPUs.
	Threads int
	// StoreImages keeps decoded snapshots in the detections table.
	StoreImages bool
}

// DefaultConfig returns a file-backed configuration.
func DefaultConfig() Config {
	return Config{
		Path:        "/data/platewatch.duckdb",
		MaxMemory:   "512MB",
		StoreImages: true,
	}
}

// DB wraps the DuckDB connection.
type DB struct {
	conn   *sql.DB
	cfg    Config
	closed atomic.Bool
}

// New opens the database and creates the schema.
func New(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: path cannot be empty")
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = DefaultConfig().MaxMemory
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	db.configureConnectionPool()

	if err := db.createSchema(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Database opened")
	return db, nil
}

func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			device_key TEXT NOT NULL,
			mac TEXT,
			serial TEXT,
			device_name TEXT,
			plate TEXT NOT NULL,
			grammar TEXT NOT NULL,
			target_type TEXT,
			camera_no TEXT,
			image BLOB,
			image_size INTEGER NOT NULL DEFAULT 0,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_received ON detections(received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_device ON detections(device_key, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_plate ON detections(plate)`,
	}
	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", q, err)
		}
	}
	return nil
}

// ensureContext applies a default timeout when ctx has no deadline.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection. It is idempotent.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	return db.conn.Close()
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close resource")
	}
}
