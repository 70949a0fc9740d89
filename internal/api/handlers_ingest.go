// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/markup"
)

// Plain-text bodies expected by camera firmware.
const (
	bodyProcessed        = "Data processed"
	bodyMethodNotAllowed = "Method Not Allowed"
)

// outcome maps a processing error to a status and error code. Dispatch
// failures win over payload errors because earlier detections in the
// same stream were accepted but not stored.
func outcome(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, ingest.ErrDispatch):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, markup.ErrFatal):
		return http.StatusBadRequest, CodeMalformed
	case errors.Is(err, ingest.ErrRead):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) (ingest.Summary, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	sum, err := h.pipeline.Process(r.Context(), body)
	log := logging.Ctx(r.Context())
	if err != nil {
		log.Warn().Err(err).
			Int64("bytes", sum.Bytes).
			Int("candidates", sum.Candidates).
			Int("failed", sum.Failed).
			Msg("payload processed with errors")
	} else {
		log.Debug().
			Int64("bytes", sum.Bytes).
			Int("candidates", sum.Candidates).
			Int("dispatched", len(sum.Dispatched)).
			Msg("payload processed")
	}
	return sum, err
}

// IngestRoot accepts camera uploads on "/" and answers in plain text, the
// way the cameras expect.
func (h *Handler) IngestRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(bodyMethodNotAllowed))
		return
	}

	_, err := h.process(w, r)
	status, _ := outcome(err)
	w.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = w.Write([]byte(bodyProcessed))
		return
	}
	_, _ = w.Write([]byte(http.StatusText(status)))
}

// IngestEvents accepts camera uploads and returns the processing summary
// as JSON.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sum, err := h.process(w, r)
	status, code := outcome(err)
	if status != http.StatusOK {
		respondJSON(w, status, &APIResponse{
			Status:   "error",
			Data:     sum,
			Metadata: Metadata{Timestamp: time.Now().UTC()},
			Error:    &APIError{Code: code, Message: http.StatusText(status)},
		})
		return
	}
	respondSuccess(w, sum, start)
}
