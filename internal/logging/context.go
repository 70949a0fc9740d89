// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	deviceKeyKey contextKey = "device_key"
)

// GenerateRequestID returns a new random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID stores a request ID for Ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the stored request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithDeviceKey stores the reporting device's dedup key for Ctx.
func ContextWithDeviceKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, deviceKeyKey, key)
}

// DeviceKeyFromContext returns the stored device key or "".
func DeviceKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(deviceKeyKey).(string); ok {
		return key
	}
	return ""
}

// Ctx returns the global logger enriched with request_id and device_key
// when present in ctx.
//
//	logging.Ctx(ctx).Info().Str("plate", p).Msg("detection accepted")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if key := DeviceKeyFromContext(ctx); key != "" {
		lc = lc.Str("device_key", key)
	}
	l := lc.Logger()
	return &l
}
