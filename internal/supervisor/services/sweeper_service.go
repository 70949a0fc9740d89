// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package services

import (
	"context"
	"time"

	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// Sweepable is a history that can drop expired entries.
type Sweepable interface {
	// Sweep removes expired entries and returns how many were removed.
	Sweep() int
	// Len returns the number of tracked devices.
	Len() int
}

// SweeperService periodically expires dedup history.
type SweeperService struct {
	window   Sweepable
	interval time.Duration
}

// NewSweeperService sweeps window every interval. A non-positive interval
// defaults to one minute.
func NewSweeperService(window Sweepable, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweeperService{window: window, interval: interval}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *SweeperService) sweep() {
	removed := s.window.Sweep()
	devices := s.window.Len()
	metrics.DedupDevices.Set(float64(devices))
	if removed == 0 {
		return
	}
	metrics.DedupExpired.Add(float64(removed))
	logging.Debug().
		Int("expired", removed).
		Int("devices", devices).
		Msg("dedup history swept")
}

// String implements fmt.Stringer.
func (s *SweeperService) String() string {
	return "dedup-sweeper"
}
