// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/platewatch/internal/collector"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/markup"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// Summary reports what one stream produced.
type Summary struct {
	Bytes      int64                  `json:"bytes"`
	Anomalies  map[markup.Anomaly]int `json:"anomalies,omitempty"`
	Fatal      bool                   `json:"fatal"`
	Candidates int                    `json:"candidates"`
	Discarded  int                    `json:"discarded"`
	Decisions  []dedup.Outcome        `json:"decisions,omitempty"`
	Dispatched []string               `json:"dispatched,omitempty"`
	Failed     int                    `json:"failed"`
}

// Session owns the tokenizer and collector of one inbound stream. It is
// not safe for concurrent use.
type Session struct {
	p     *Pipeline
	ctx   context.Context
	tok   *markup.Tokenizer
	col   *collector.Collector
	ended bool

	summary Summary
	errs    []error
}

// NewSession starts a stream. ctx bounds every dispatch made from it.
func (p *Pipeline) NewSession(ctx context.Context) *Session {
	s := &Session{p: p, ctx: ctx}
	s.col = p.schema.NewCollector(s.dispatch)
	s.tok = markup.NewTokenizer(s, p.cfg.Markup)
	return s
}

// Feed pushes the next chunk of the stream. Closed envelopes are
// dispatched before Feed returns.
func (s *Session) Feed(chunk []byte) error {
	if s.ended {
		return ErrSessionEnded
	}
	s.summary.Bytes += int64(len(chunk))
	s.tok.Feed(chunk)
	return nil
}

// End finalizes the stream and returns its summary. The error joins
// markup.ErrFatal for an unrecoverable stream and one ErrDispatch per
// failed insert.
func (s *Session) End() (Summary, error) {
	if s.ended {
		return s.summary, ErrSessionEnded
	}
	s.ended = true

	if err := s.tok.End(); err != nil {
		s.errs = append(s.errs, err)
	}
	if s.col.End() {
		s.summary.Discarded++
		metrics.ScopesDiscarded.Inc()
		logging.Ctx(s.ctx).Debug().Msg("stream ended inside an open envelope")
	}
	return s.summary, errors.Join(s.errs...)
}

// Handle implements markup.Handler. Anomalies are counted and every event
// is forwarded to the collector.
func (s *Session) Handle(ev markup.Event) {
	switch ev.Kind {
	case markup.KindMalformed:
		if s.summary.Anomalies == nil {
			s.summary.Anomalies = make(map[markup.Anomaly]int)
		}
		s.summary.Anomalies[ev.Anomaly]++
		metrics.MarkupAnomalies.WithLabelValues(string(ev.Anomaly)).Inc()
		logging.Ctx(s.ctx).Debug().
			Str("anomaly", string(ev.Anomaly)).
			Str("detail", ev.Data).
			Msg("recovered from malformed markup")
	case markup.KindFatal:
		s.summary.Fatal = true
		if s.col.State() != collector.StateIdle {
			s.summary.Discarded++
			metrics.ScopesDiscarded.Inc()
		}
		metrics.MarkupFatal.Inc()
		logging.Ctx(s.ctx).Warn().Str("detail", ev.Data).Msg("abandoning unrecoverable payload")
	}
	s.col.Handle(ev)
}

// dispatch runs one closed envelope through dedup and, when accepted,
// hands the record to the inserter exactly once.
func (s *Session) dispatch(c collector.Candidate) {
	p := s.p
	s.summary.Candidates++
	metrics.Candidates.Inc()

	key := p.deviceKey(c)
	ctx := logging.ContextWithDeviceKey(s.ctx, key)

	d := p.window.Accept(key, c.Plate)
	s.summary.Decisions = append(s.summary.Decisions, d.Outcome)
	metrics.DedupDecisions.WithLabelValues(string(d.Outcome)).Inc()
	metrics.DedupDevices.Set(float64(p.window.Len()))

	if !d.Accepted() {
		logging.Ctx(ctx).Debug().
			Str("plate", d.Plate).
			Str("outcome", string(d.Outcome)).
			Msg("detection rejected")
		return
	}

	rec := p.assemble(ctx, c, key, d)
	if err := p.insert(ctx, rec); err != nil {
		s.summary.Failed++
		s.errs = append(s.errs, fmt.Errorf("%w: record %s: %w", ErrDispatch, rec.ID, err))
		if p.cfg.CommitPolicy == CommitAfterWrite && p.window.Release(key, d.Plate) {
			metrics.DedupReleased.Inc()
		}
		logging.Ctx(ctx).Error().Err(err).
			Str("record_id", rec.ID).
			Str("plate", rec.Plate).
			Msg("failed to insert detection")
		return
	}

	s.summary.Dispatched = append(s.summary.Dispatched, rec.ID)
	logging.Ctx(ctx).Info().
		Str("record_id", rec.ID).
		Str("plate", rec.Plate).
		Str("grammar", rec.Grammar).
		Str("camera_no", rec.CameraNo).
		Msg("detection accepted")
}
