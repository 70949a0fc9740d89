// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package metrics registers the Prometheus collectors for the ingestion
// path, the persistence collaborators and the HTTP API.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extraction

	MarkupAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_markup_anomalies_total",
			Help: "Recoverable markup irregularities seen in camera payloads",
		},
		[]string{"kind"},
	)

	MarkupFatal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewatch_markup_fatal_total",
			Help: "Payloads abandoned because the markup could not be resynchronized",
		},
	)

	ScopesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewatch_scopes_discarded_total",
			Help: "Envelopes that never closed and were dropped",
		},
	)

	Candidates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewatch_candidates_total",
			Help: "Detection candidates produced by closed envelopes",
		},
	)

	// Deduplication

	DedupDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_dedup_decisions_total",
			Help: "Deduplication decisions by outcome",
		},
		[]string{"outcome"},
	)

	DedupDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platewatch_dedup_devices",
			Help: "Devices with plates in the deduplication window",
		},
	)

	DedupReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewatch_dedup_released_total",
			Help: "Accepted plates released after a failed insert",
		},
	)

	DedupExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platewatch_dedup_expired_total",
			Help: "History entries removed by TTL expiry",
		},
	)

	// Dispatch

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platewatch_dispatch_duration_seconds",
			Help:    "Time spent inserting accepted detections",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_dispatch_errors_total",
			Help: "Failed detection inserts by reason",
		},
		[]string{"reason"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platewatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_sink_errors_total",
			Help: "Best-effort sink failures by sink",
		},
		[]string{"sink"},
	)

	// Storage

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platewatch_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_duckdb_query_errors_total",
			Help: "Failed DuckDB queries",
		},
		[]string{"operation"},
	)

	SpoolPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platewatch_spool_pending",
			Help: "Detections waiting in the retry spool",
		},
	)

	SpoolRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_spool_retries_total",
			Help: "Spool retry attempts by result",
		},
		[]string{"result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_events_published_total",
			Help: "Detections published to the message bus by result",
		},
		[]string{"result"},
	)

	// OCR

	OCRDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platewatch_ocr_duration_seconds",
			Help:    "Time spent recognizing text in captured images",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	OCRResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_ocr_results_total",
			Help: "OCR outcomes (ok, error, no_match)",
		},
		[]string{"result"},
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platewatch_api_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platewatch_api_active_requests",
			Help: "Requests currently in flight",
		},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platewatch_websocket_clients",
			Help: "Connected live feed clients",
		},
	)
)

// RecordDBQuery observes a DuckDB query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDispatch observes one insert attempt. reason classifies failures.
func RecordDispatch(duration time.Duration, err error, reason string) {
	DispatchDuration.Observe(duration.Seconds())
	if err != nil {
		DispatchErrors.WithLabelValues(reason).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordOCR observes one recognition. found reports whether the expected
// key was present in the recognized text.
func RecordOCR(duration time.Duration, err error, found bool) {
	OCRDuration.Observe(duration.Seconds())
	switch {
	case err != nil:
		OCRResults.WithLabelValues("error").Inc()
	case !found:
		OCRResults.WithLabelValues("no_match").Inc()
	default:
		OCRResults.WithLabelValues("ok").Inc()
	}
}

// RecordPublish counts a message bus publish.
func RecordPublish(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("ok").Inc()
}

// ErrorReason maps well-known errors to a bounded label value.
func ErrorReason(err error, known map[error]string) string {
	for target, reason := range known {
		if errors.Is(err, target) {
			return reason
		}
	}
	return "other"
}
