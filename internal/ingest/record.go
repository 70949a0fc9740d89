// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import (
	"context"
	"time"
)

// Record is an accepted detection handed to persistence. Records are
// values; Image must be treated as read-only by every Inserter.
type Record struct {
	ID         string    `json:"id"`
	MAC        string    `json:"mac,omitempty"`
	Serial     string    `json:"serial,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	DeviceKey  string    `json:"device_key"`
	Plate      string    `json:"plate"`
	Grammar    string    `json:"grammar"`
	TargetType string    `json:"target_type,omitempty"`
	CameraNo   string    `json:"camera_no,omitempty"`
	Image      []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// HasImage reports whether an image was captured with the detection.
func (r Record) HasImage() bool { return len(r.Image) > 0 }

// Inserter persists accepted detections. Insert is called exactly once per
// accepted detection and must honor ctx cancellation.
type Inserter interface {
	Insert(ctx context.Context, rec Record) error
}

// InserterFunc adapts a function to Inserter.
type InserterFunc func(ctx context.Context, rec Record) error

// Insert calls f.
func (f InserterFunc) Insert(ctx context.Context, rec Record) error { return f(ctx, rec) }

// CameraNumberReader extracts the camera number printed on a captured
// image. Implementations are expected to bound their own run time.
type CameraNumberReader interface {
	CameraNumber(ctx context.Context, image []byte) (string, error)
}
