// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package main is the entry point for the Platewatch server.
//
// Platewatch receives the XML detection payloads that traffic cameras POST
// when they read a licence plate, extracts the configured fields, drops
// repeated plates and stores what remains in DuckDB.
//
// # Startup
//
//  1. Configuration: defaults, then config.yaml, then environment (Koanf v2)
//  2. Logging: zerolog, level and format from configuration
//  3. Database: DuckDB detections table
//  4. Spool (optional): BadgerDB retry queue in front of the database
//  5. Event bus (optional): NATS publisher for accepted detections
//  6. WebSocket hub: live detection feed for dashboards
//  7. Pipeline: markup tokenizer, field collector, dedup window
//  8. HTTP server: camera ingest on "/", read API under /api/v1
//
// # Build Tags
//
//	go build -tags "nats" ./cmd/server      # NATS publisher
//	go build -tags "wal" ./cmd/server       # BadgerDB spool
//	go build -tags "nats,wal" ./cmd/server  # both
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// in-flight uploads, then the spool and database are closed.
//
// # Example Usage
//
//	export DUCKDB_PATH=./platewatch.duckdb
//	export PLATE_PRESETS=default,nl-sidecodes
//	./platewatch
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/platewatch/internal/config"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingConfig())

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("db_path", cfg.Database.Path).
		Str("envelope", cfg.Extract.Envelope).
		Int("fields", len(cfg.Fields)).
		Bool("spool", cfg.Spool.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Bool("ocr", cfg.OCR.Enabled).
		Msg("Configuration loaded")

	a, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureBackoff:  15 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}
	a.supervise(tree)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for services")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("Platewatch stopped")
	if len(unstopped) > 0 {
		a.close()
		os.Exit(1)
	}
}
