// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/store"
	"github.com/tomtom215/platewatch/internal/validation"
)

// Query limits for detection listings.
const (
	defaultDetectionLimit = 50
	maxDetectionLimit     = 500
)

// DetectionsRequest is the validated query of GET /api/v1/detections.
type DetectionsRequest struct {
	Limit  int    `validate:"min=1,max=500"`
	Device string `validate:"omitempty,devicekey,excluded_with=Plate"`
	Plate  string `validate:"omitempty,max=32"`
}

func parseDetectionsRequest(r *http.Request) (DetectionsRequest, error) {
	q := r.URL.Query()
	req := DetectionsRequest{
		Limit:  defaultDetectionLimit,
		Device: q.Get("device"),
		Plate:  strings.ToUpper(strings.TrimSpace(q.Get("plate"))),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("limit must be an integer")
		}
		req.Limit = n
	}
	return req, nil
}

// Detections lists stored detections, newest first, optionally filtered
// by device or plate.
func (h *Handler) Detections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := parseDetectionsRequest(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	var out []store.Detection
	switch {
	case req.Device != "":
		out, err = h.store.ByDevice(r.Context(), req.Device, req.Limit)
	case req.Plate != "":
		out, err = h.store.ByPlate(r.Context(), req.Plate, req.Limit)
	default:
		out, err = h.store.Recent(r.Context(), req.Limit)
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to query detections", err)
		return
	}
	respondList(w, out, start)
}

// DetectionImage returns the stored snapshot of one detection.
func (h *Handler) DetectionImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.image(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "No image for detection", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load image", err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Handler) image(ctx context.Context, id string) ([]byte, error) {
	if h.images != nil {
		if img, ok := h.images.Get(id); ok {
			return img, nil
		}
	}
	img, err := h.store.Image(ctx, id)
	if err == nil && h.images != nil {
		h.images.Add(id, img)
	}
	return img, err
}

// DevicesResponse is the in-memory dedup window.
type DevicesResponse struct {
	Capacity int                   `json:"capacity"`
	Devices  []dedup.DeviceHistory `json:"devices"`
}

// Devices returns the dedup window snapshot.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, DevicesResponse{
		Capacity: h.window.Capacity(),
		Devices:  h.window.Snapshot(),
	}, start)
}

// DeviceStats returns per-device totals from the store.
func (h *Handler) DeviceStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out, err := h.store.Devices(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to query devices", err)
		return
	}
	respondList(w, out, start)
}

// DeviceHistoryRequest is the validated path of the history endpoint.
type DeviceHistoryRequest struct {
	Key string `validate:"required,devicekey"`
}

// DeviceHistory returns the window entries of one device. Unknown devices
// have an empty history.
func (h *Handler) DeviceHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := DeviceHistoryRequest{Key: chi.URLParam(r, "key")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}
	respondList(w, h.window.History(req.Key), start)
}

// SpoolResponse reports spool counters and dead letters.
type SpoolResponse struct {
	Enabled     bool        `json:"enabled"`
	Stats       interface{} `json:"stats,omitempty"`
	DeadLetters interface{} `json:"dead_letters,omitempty"`
}

// Spool reports the retry spool state.
func (h *Handler) Spool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.spool == nil {
		respondSuccess(w, SpoolResponse{Enabled: false}, start)
		return
	}
	dead, err := h.spool.DeadLetters()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to read dead letters", err)
		return
	}
	respondSuccess(w, SpoolResponse{Enabled: true, Stats: h.spool.Stats(), DeadLetters: dead}, start)
}
