// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

//go:build !wal

package spool

import (
	"context"
	"sync/atomic"

	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
)

// Spool passes records straight to its target when built without the wal
// tag.
type Spool struct {
	target    ingest.Inserter
	closed    atomic.Bool
	delivered atomic.Int64
}

// Open returns a pass-through spool.
func Open(_ Config, target ingest.Inserter) (*Spool, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	logging.Info().Msg("Spool disabled (build without -tags wal). Detections are written directly.")
	return &Spool{target: target}, nil
}

// Insert implements ingest.Inserter.
func (s *Spool) Insert(ctx context.Context, rec ingest.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.target.Insert(ctx, rec); err != nil {
		return err
	}
	s.delivered.Add(1)
	return nil
}

// Drain does nothing.
func (s *Spool) Drain(context.Context) (DrainResult, error) {
	if s.closed.Load() {
		return DrainResult{}, ErrClosed
	}
	return DrainResult{}, nil
}

// Serve blocks until ctx is canceled.
func (s *Spool) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *Spool) String() string { return "spool-retry" }

// DeadLetters always returns an empty list.
func (s *Spool) DeadLetters() ([]ingest.Record, error) { return nil, nil }

// Stats returns the delivered count only.
func (s *Spool) Stats() Stats {
	n := s.delivered.Load()
	return Stats{Queued: n, Delivered: n}
}

// Close marks the spool closed.
func (s *Spool) Close() error {
	s.closed.Store(true)
	return nil
}
