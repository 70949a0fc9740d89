// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

const readyTimeout = 2 * time.Second

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, time.Now())
}

// HealthReady reports 200 only when the database answers and the
// inserter breaker is not open.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	dbConnected := h.store != nil && h.store.Ping(ctx) == nil
	breaker := h.pipeline.BreakerState()
	ready := dbConnected && breaker != gobreaker.StateOpen.String()

	data := map[string]interface{}{
		"database_connected": dbConnected,
		"breaker_state":      breaker,
		"devices_tracked":    h.window.Len(),
		"ready_to_serve":     ready,
		"uptime":             time.Since(h.startTime).Seconds(),
	}
	if h.hub != nil {
		data["websocket_clients"] = h.hub.ClientCount()
	}
	if h.spool != nil {
		data["spool"] = h.spool.Stats()
	}

	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	respondJSON(w, statusCode, &APIResponse{
		Status:   status,
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}
