// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package main

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tomtom215/platewatch/internal/api"
	"github.com/tomtom215/platewatch/internal/config"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/eventbus"
	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/ocr"
	"github.com/tomtom215/platewatch/internal/spool"
	"github.com/tomtom215/platewatch/internal/store"
	"github.com/tomtom215/platewatch/internal/supervisor"
	"github.com/tomtom215/platewatch/internal/supervisor/services"
	ws "github.com/tomtom215/platewatch/internal/websocket"
)

// app holds the wired components.
type app struct {
	cfg      *config.Config
	db       *store.DB
	spool    *spool.Spool
	bus      *eventbus.Publisher
	hub      *ws.Hub
	window   *dedup.Window
	pipeline *ingest.Pipeline
	server   *http.Server

	closeOnce sync.Once
}

// newApp opens storage and builds the ingest pipeline and HTTP server.
// Nothing is started; see supervise.
func newApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = store.New(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	var primary ingest.Inserter = a.db
	if cfg.Spool.Enabled {
		a.spool, err = spool.Open(cfg.SpoolConfig(), a.db)
		if err != nil {
			return nil, fmt.Errorf("open spool: %w", err)
		}
		primary = a.spool
		logging.Info().Str("path", cfg.Spool.Path).Msg("Spool enabled")
	}

	a.hub = ws.NewHub()
	sinks := []ingest.Sink{{Name: "websocket", Inserter: a.hub}}

	if cfg.NATS.Enabled {
		pub, dialErr := eventbus.Dial(cfg.BusConfig())
		switch {
		case errors.Is(dialErr, eventbus.ErrUnavailable):
			logging.Warn().Msg("NATS_ENABLED=true but NATS support not compiled (build with -tags nats)")
		case dialErr != nil:
			return nil, fmt.Errorf("connect event bus: %w", dialErr)
		default:
			a.bus = eventbus.NewPublisher(pub, cfg.BusConfig())
			sinks = append(sinks, ingest.Sink{Name: "eventbus", Inserter: a.bus})
			logging.Info().Str("url", cfg.NATS.URL).Msg("Event bus connected")
		}
	}

	validator, err := cfg.PlateValidator()
	if err != nil {
		return nil, err
	}
	a.window = dedup.NewWindow(validator, cfg.WindowConfig())

	var opts []ingest.Option
	if cfg.OCR.Enabled {
		rec, ocrErr := ocr.New(cfg.OCRConfig())
		if ocrErr != nil {
			return nil, fmt.Errorf("init ocr: %w", ocrErr)
		}
		opts = append(opts, ingest.WithCameraNumberReader(rec))
		logging.Info().Str("binary", cfg.OCR.Binary).Msg("Camera number OCR enabled")
	}

	a.pipeline, err = ingest.New(cfg.PipelineConfig(), a.window, ingest.NewFanout(primary, sinks...), opts...)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	hcfg := api.HandlerConfig{
		Pipeline:       a.pipeline,
		Store:          a.db,
		Window:         a.window,
		Hub:            a.hub,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSOrigins:    cfg.Security.CORSOrigins,
		ImageCacheSize: cfg.Database.ImageCacheSize,
	}
	// A nil *spool.Spool must not become a non-nil interface.
	if a.spool != nil {
		hcfg.Spool = a.spool
	}
	router := api.NewRouter(api.NewHandler(hcfg), api.RouterConfig{
		CORSOrigins:             cfg.Security.CORSOrigins,
		RateLimitRequests:       cfg.Security.RateLimitReqs,
		RateLimitWindow:         cfg.Security.RateLimitWindow,
		IngestRateLimitRequests: cfg.Security.IngestRateLimitReqs,
	})

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

// supervise registers the long-running services with tree.
func (a *app) supervise(tree *supervisor.SupervisorTree) {
	if a.spool != nil {
		tree.AddDataService(a.spool)
	}
	if a.cfg.Dedup.TTL > 0 {
		tree.AddDataService(services.NewSweeperService(a.window, a.cfg.Dedup.SweepInterval))
	}
	tree.AddMessagingService(a.hub)
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
}

// close releases storage. Safe to call more than once.
func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.bus != nil {
			if err := a.bus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event bus")
			}
		}
		if a.spool != nil {
			if err := a.spool.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing spool")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing database")
			}
		}
	})
}
