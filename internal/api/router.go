// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package api serves camera uploads and the read API with chi.
//
// Cameras post raw payloads to "/" (plain-text replies) or
// "/api/v1/events" (JSON summary). Everything else under /api/v1 is read
// only: stored detections, the dedup window, the spool and a websocket
// feed of accepted detections.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/platewatch/internal/middleware"
)

// RouterConfig holds the HTTP policy knobs.
type RouterConfig struct {
	CORSOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP on read routes.
	// Zero disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// IngestRateLimitRequests limits camera uploads the same way.
	IngestRateLimitRequests int
}

// rateLimit returns a per-IP limiter, or a passthrough when requests is 0.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}

// NewRouter builds the route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	// go-chi/cors treats an empty origin list as "*", so CORS is only
	// enabled when origins are configured.
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         86400,
		}))
	}
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
	})

	ingestLimit := rateLimit(cfg.IngestRateLimitRequests, cfg.RateLimitWindow)
	readLimit := rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)

	r.Handle("/metrics", promhttp.Handler())
	r.With(ingestLimit).HandleFunc("/", h.IngestRoot)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)

		r.With(ingestLimit).Post("/events", h.IngestEvents)

		r.Group(func(r chi.Router) {
			r.Use(readLimit)
			r.Get("/ws", h.WebSocket)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Compress(5, "application/json"))
				r.Get("/detections", h.Detections)
				r.Get("/detections/{id}/image", h.DetectionImage)
				r.Get("/devices", h.Devices)
				r.Get("/devices/stats", h.DeviceStats)
				r.Get("/devices/{key}/history", h.DeviceHistory)
				r.Get("/spool", h.Spool)
			})
		})
	})

	return r
}
