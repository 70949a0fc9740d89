// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package api

import (
	"net/http"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/websocket"
)

const registerTimeout = 5 * time.Second

func (h *Handler) upgrader() gws.Upgrader {
	return gws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows requests without an Origin header (non
// browser dashboards) and browser origins listed in the CORS origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket origin rejected")
	return false
}

// WebSocket upgrades the request and streams accepted detections.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "Live feed unavailable", nil)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	timer := time.NewTimer(registerTimeout)
	defer timer.Stop()
	select {
	case h.hub.Register <- client:
		client.Start()
	case <-timer.C:
		logging.Ctx(r.Context()).Warn().Msg("websocket hub not accepting clients")
		_ = conn.Close()
	}
}
