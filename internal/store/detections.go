// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// Detection is a stored detection without its image.
type Detection struct {
	ID         string    `json:"id"`
	DeviceKey  string    `json:"device_key"`
	MAC        string    `json:"mac,omitempty"`
	Serial     string    `json:"serial,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	Plate      string    `json:"plate"`
	Grammar    string    `json:"grammar"`
	TargetType string    `json:"target_type,omitempty"`
	CameraNo   string    `json:"camera_no,omitempty"`
	ImageSize  int       `json:"image_size"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeviceSummary aggregates detections per device.
type DeviceSummary struct {
	DeviceKey  string    `json:"device_key"`
	DeviceName string    `json:"device_name,omitempty"`
	Detections int64     `json:"detections"`
	LastSeen   time.Time `json:"last_seen"`
}

const detectionColumns = `id, device_key, COALESCE(mac, ''), COALESCE(serial, ''), COALESCE(device_name, ''),
	plate, grammar, COALESCE(target_type, ''), COALESCE(camera_no, ''), image_size, received_at`

// Insert implements ingest.Inserter.
func (db *DB) Insert(ctx context.Context, rec ingest.Record) (err error) {
	if db.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", time.Since(start), err) }()

	var img any
	if db.cfg.StoreImages && rec.HasImage() {
		img = rec.Image
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO detections
		(id, device_key, mac, serial, device_name, plate, grammar, target_type, camera_no, image, image_size, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceKey, nullString(rec.MAC), nullString(rec.Serial), nullString(rec.DeviceName),
		rec.Plate, rec.Grammar, nullString(rec.TargetType), nullString(rec.CameraNo),
		img, len(rec.Image), rec.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert detection %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the newest detections first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Detection, error) {
	return db.queryDetections(ctx, "recent",
		`SELECT `+detectionColumns+` FROM detections ORDER BY received_at DESC, id LIMIT ?`, limit)
}

// ByDevice returns the newest detections reported by one device.
func (db *DB) ByDevice(ctx context.Context, deviceKey string, limit int) ([]Detection, error) {
	return db.queryDetections(ctx, "by_device",
		`SELECT `+detectionColumns+` FROM detections WHERE device_key = ? ORDER BY received_at DESC, id LIMIT ?`,
		deviceKey, limit)
}

// ByPlate returns every stored detection of a normalized plate.
func (db *DB) ByPlate(ctx context.Context, plate string, limit int) ([]Detection, error) {
	return db.queryDetections(ctx, "by_plate",
		`SELECT `+detectionColumns+` FROM detections WHERE plate = ? ORDER BY received_at DESC, id LIMIT ?`,
		plate, limit)
}

func (db *DB) queryDetections(ctx context.Context, op, query string, args ...any) (out []Detection, err error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery(op, time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	out = []Detection{}
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.ID, &d.DeviceKey, &d.MAC, &d.Serial, &d.DeviceName,
			&d.Plate, &d.Grammar, &d.TargetType, &d.CameraNo, &d.ImageSize, &d.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.ReceivedAt = d.ReceivedAt.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return out, nil
}

// Devices returns a per-device summary ordered by most recent activity.
func (db *DB) Devices(ctx context.Context) (out []DeviceSummary, err error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("devices", time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT device_key, COALESCE(MAX(device_name), ''), COUNT(*), MAX(received_at)
		FROM detections GROUP BY device_key ORDER BY MAX(received_at) DESC, device_key`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	out = []DeviceSummary{}
	for rows.Next() {
		var s DeviceSummary
		if err := rows.Scan(&s.DeviceKey, &s.DeviceName, &s.Detections, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		s.LastSeen = s.LastSeen.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return out, nil
}

// Image returns the stored snapshot of a detection.
func (db *DB) Image(ctx context.Context, id string) (img []byte, err error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("image", time.Since(start), err) }()

	err = db.conn.QueryRowContext(ctx, `SELECT image FROM detections WHERE id = ?`, id).Scan(&img)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query image %s: %w", id, err)
	}
	if len(img) == 0 {
		return nil, ErrNotFound
	}
	return img, nil
}

// Count returns the number of stored detections.
func (db *DB) Count(ctx context.Context) (n int64, err error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&n)
	return n, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
