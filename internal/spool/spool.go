// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

//go:build wal

package spool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/metrics"
)

const (
	prefixPending = "pending:"
	prefixDead    = "dead:"
)

// Spool is a BadgerDB-backed durable queue in front of an inserter.
type Spool struct {
	db     *badger.DB
	cfg    Config
	target ingest.Inserter

	mu     sync.RWMutex
	closed bool

	// Entries being delivered, by record ID. Insert and the retry loop
	// both claim an entry before delivering it.
	processing sync.Map

	queued    atomic.Int64
	delivered atomic.Int64
	retries   atomic.Int64
}

// Open opens (or creates) the spool at cfg.Path.
func Open(cfg Config, target ingest.Inserter) (*Spool, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	if cfg.Path == "" {
		return nil, errors.New("spool: path cannot be empty")
	}
	def := DefaultConfig()
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.MemTableSize <= 0 {
		cfg.MemTableSize = def.MemTableSize
	}
	if cfg.ValueLogFileSize <= 0 {
		cfg.ValueLogFileSize = def.ValueLogFileSize
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Spool{db: db, cfg: cfg, target: target}
	if n, err := s.count(prefixPending); err == nil {
		metrics.SpoolPending.Set(float64(n))
		if n > 0 {
			logging.Info().Int64("pending", n).Msg("Spool has undelivered detections from a previous run")
		}
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Spool opened")
	return s, nil
}

func (s *Spool) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Insert implements ingest.Inserter. The record is queued durably and then
// delivered once; a failed delivery stays queued for the retry loop and is
// not reported as an error.
func (s *Spool) Insert(ctx context.Context, rec ingest.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.processing.Store(rec.ID, struct{}{})
	defer s.processing.Delete(rec.ID)

	e := newEntry(rec, time.Now())
	if err := s.put(prefixPending+rec.ID, e); err != nil {
		return fmt.Errorf("spool: queue %s: %w", rec.ID, err)
	}
	s.queued.Add(1)
	metrics.SpoolPending.Inc()

	if err := s.target.Insert(ctx, rec); err != nil {
		s.recordFailure(rec.ID, e, err)
		logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Delivery failed, detection kept in spool")
		return nil
	}
	s.ack(rec.ID)
	return nil
}

// Drain makes one delivery pass over every pending entry.
func (s *Spool) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if err := s.checkOpen(); err != nil {
		return res, err
	}

	pending, err := s.list(prefixPending)
	if err != nil {
		return res, err
	}

	for _, e := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		id := e.Record.ID
		if _, busy := s.processing.LoadOrStore(id, struct{}{}); busy {
			res.Skipped++
			continue
		}

		s.retries.Add(1)
		err := s.target.Insert(ctx, e.record())
		switch {
		case err == nil:
			s.ack(id)
			res.Delivered++
			metrics.SpoolRetries.WithLabelValues("delivered").Inc()
		case s.recordFailure(id, e, err):
			res.Dead++
			metrics.SpoolRetries.WithLabelValues("dead").Inc()
		default:
			res.Failed++
			metrics.SpoolRetries.WithLabelValues("failed").Inc()
		}
		s.processing.Delete(id)
	}

	if res.Delivered > 0 || res.Failed > 0 || res.Dead > 0 {
		logging.Info().
			Int("delivered", res.Delivered).
			Int("failed", res.Failed).
			Int("dead", res.Dead).
			Msg("Spool drain complete")
	}
	return res, nil
}

// Serve runs the retry loop until ctx is canceled. It implements
// suture.Service.
func (s *Spool) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Drain(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				if ctx.Err() == nil {
					logging.Error().Err(err).Msg("Spool drain failed")
				}
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Spool) String() string { return "spool-retry" }

// ack removes a delivered entry.
func (s *Spool) ack(id string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixPending + id))
	})
	if err != nil {
		logging.Error().Err(err).Str("record_id", id).Msg("Failed to remove delivered detection from spool")
		return
	}
	s.delivered.Add(1)
	metrics.SpoolPending.Dec()
}

// recordFailure bumps the attempt count and reports whether the entry was
// moved to the dead letter set.
func (s *Spool) recordFailure(id string, e *entry, cause error) bool {
	e.Attempts++
	e.LastError = cause.Error()

	dead := s.cfg.MaxAttempts > 0 && e.Attempts >= s.cfg.MaxAttempts
	data, err := encodeEntry(e)
	if err != nil {
		logging.Error().Err(err).Str("record_id", id).Msg("Failed to encode spool entry")
		return false
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if !dead {
			return txn.Set([]byte(prefixPending+id), data)
		}
		if err := txn.Set([]byte(prefixDead+id), data); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixPending + id))
	})
	if err != nil {
		logging.Error().Err(err).Str("record_id", id).Msg("Failed to update spool entry")
		return false
	}
	if dead {
		metrics.SpoolPending.Dec()
		logging.Error().
			Str("record_id", id).
			Int("attempts", e.Attempts).
			Str("last_error", e.LastError).
			Msg("Detection exceeded delivery attempts, moved to dead letters")
	}
	return dead
}

func (s *Spool) put(key string, e *entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Spool) list(prefix string) ([]*entry, error) {
	var out []*entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				e, err := decodeEntry(val)
				if err != nil {
					return err
				}
				out = append(out, e)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
		}
		return nil
	})
	return out, err
}

func (s *Spool) count(prefix string) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DeadLetters returns the records that exceeded MaxAttempts.
func (s *Spool) DeadLetters() ([]ingest.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	entries, err := s.list(prefixDead)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record())
	}
	return out, nil
}

// Stats returns spool counters.
func (s *Spool) Stats() Stats {
	st := Stats{
		Queued:    s.queued.Load(),
		Delivered: s.delivered.Load(),
		Retries:   s.retries.Load(),
	}
	if s.checkOpen() == nil {
		st.Pending, _ = s.count(prefixPending)
		st.Dead, _ = s.count(prefixDead)
	}
	return st
}

// Close closes the underlying database. It is idempotent.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
