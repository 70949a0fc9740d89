// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import (
	"context"

	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// Sink is a named best-effort consumer of accepted records.
type Sink struct {
	Name     string
	Inserter Inserter
}

// Fanout writes to a primary inserter and then, only when that succeeded,
// to each sink. Sink failures are logged and counted but never fail the
// insert.
type Fanout struct {
	primary Inserter
	sinks   []Sink
}

// NewFanout creates a fan-out over primary and sinks.
func NewFanout(primary Inserter, sinks ...Sink) *Fanout {
	return &Fanout{primary: primary, sinks: sinks}
}

// Insert implements Inserter.
func (f *Fanout) Insert(ctx context.Context, rec Record) error {
	if err := f.primary.Insert(ctx, rec); err != nil {
		return err
	}
	for _, s := range f.sinks {
		if err := s.Inserter.Insert(ctx, rec); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name).Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Str("sink", s.Name).
				Str("record_id", rec.ID).
				Msg("sink failed")
		}
	}
	return nil
}
