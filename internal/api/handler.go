// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package api

import (
	"context"
	"io"
	"time"

	"github.com/tomtom215/platewatch/internal/cache"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/spool"
	"github.com/tomtom215/platewatch/internal/store"
	"github.com/tomtom215/platewatch/internal/websocket"
)

// Processor runs one camera payload through extraction and dispatch.
type Processor interface {
	Process(ctx context.Context, r io.Reader) (ingest.Summary, error)
	BreakerState() string
}

// DetectionStore is the read side of persistence.
type DetectionStore interface {
	Recent(ctx context.Context, limit int) ([]store.Detection, error)
	ByDevice(ctx context.Context, deviceKey string, limit int) ([]store.Detection, error)
	ByPlate(ctx context.Context, plate string, limit int) ([]store.Detection, error)
	Devices(ctx context.Context) ([]store.DeviceSummary, error)
	Image(ctx context.Context, id string) ([]byte, error)
	Ping(ctx context.Context) error
}

// SpoolInspector exposes spool state. It is nil when the spool is off.
type SpoolInspector interface {
	Stats() spool.Stats
	DeadLetters() ([]ingest.Record, error)
}

// Handler serves the ingest and read endpoints.
type Handler struct {
	pipeline     Processor
	store        DetectionStore
	window       *dedup.Window
	hub          *websocket.Hub
	spool        SpoolInspector
	maxBodyBytes int64
	corsOrigins  []string
	startTime    time.Time
	// images caches snapshots by detection ID. Nil disables caching.
	images *cache.LRU[string, []byte]
}

// HandlerConfig carries everything a Handler needs. Hub and Spool are
// optional.
type HandlerConfig struct {
	Pipeline     Processor
	Store        DetectionStore
	Window       *dedup.Window
	Hub          *websocket.Hub
	Spool        SpoolInspector
	MaxBodyBytes int64
	CORSOrigins  []string
	// ImageCacheSize is the number of snapshots kept in memory. Zero
	// disables the cache.
	ImageCacheSize int
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	h := &Handler{
		pipeline:     cfg.Pipeline,
		store:        cfg.Store,
		window:       cfg.Window,
		hub:          cfg.Hub,
		spool:        cfg.Spool,
		maxBodyBytes: cfg.MaxBodyBytes,
		corsOrigins:  cfg.CORSOrigins,
		startTime:    time.Now(),
	}
	if cfg.ImageCacheSize > 0 {
		h.images = cache.NewLRU[string, []byte](cfg.ImageCacheSize, 0)
	}
	return h
}
