// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/platewatch/internal/collector"
	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/markup"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// CommitPolicy decides whether a failed insert keeps the dedup acceptance.
type CommitPolicy string

const (
	// CommitBeforeWrite keeps the acceptance regardless of the insert
	// result. A failed insert is never retried by a later duplicate.
	CommitBeforeWrite CommitPolicy = "before_write"
	// CommitAfterWrite releases the acceptance when the insert fails so a
	// repeated report of the same plate is accepted again.
	CommitAfterWrite CommitPolicy = "after_write"
)

// Defaults.
const (
	DefaultDispatchTimeout = 5 * time.Second
	DefaultChunkSize       = 32 * 1024
)

// Config configures a Pipeline.
type Config struct {
	Envelope string
	Rules    []collector.Rule
	Markup   markup.Options
	// DeviceKeyRole picks the candidate field used as dedup key. Serial by
	// default; an empty value falls back to the MAC, then the device name.
	DeviceKeyRole   collector.Role
	DispatchTimeout time.Duration
	CommitPolicy    CommitPolicy
	Breaker         BreakerConfig
}

// DefaultConfig returns the configuration for the supported cameras.
func DefaultConfig() Config {
	return Config{
		Envelope:        collector.DefaultEnvelope,
		Rules:           collector.DefaultRules(),
		Markup:          markup.DefaultOptions(),
		DeviceKeyRole:   collector.RoleSerial,
		DispatchTimeout: DefaultDispatchTimeout,
		CommitPolicy:    CommitBeforeWrite,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCameraNumberReader enables camera number extraction from images.
func WithCameraNumberReader(r CameraNumberReader) Option {
	return func(p *Pipeline) { p.reader = r }
}

// WithClock overrides the time source for ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// Pipeline joins extraction, deduplication and dispatch. It is safe for
// concurrent use; each stream gets its own Session.
type Pipeline struct {
	cfg      Config
	schema   *collector.Schema
	window   *dedup.Window
	inserter Inserter
	breaker  *gobreaker.CircuitBreaker[struct{}]
	reader   CameraNumberReader
	now      func() time.Time
	newID    func() string
}

// New validates cfg and builds a pipeline that forwards accepted
// detections to ins.
func New(cfg Config, window *dedup.Window, ins Inserter, opts ...Option) (*Pipeline, error) {
	if ins == nil {
		return nil, ErrNilInserter
	}
	if window == nil {
		return nil, errors.New("ingest: dedup window cannot be nil")
	}
	if cfg.Envelope == "" {
		cfg.Envelope = collector.DefaultEnvelope
	}
	if cfg.Rules == nil {
		cfg.Rules = collector.DefaultRules()
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.DeviceKeyRole == collector.RoleNone {
		cfg.DeviceKeyRole = collector.RoleSerial
	}
	switch cfg.CommitPolicy {
	case "":
		cfg.CommitPolicy = CommitBeforeWrite
	case CommitBeforeWrite, CommitAfterWrite:
	default:
		return nil, fmt.Errorf("ingest: unknown commit policy %q", cfg.CommitPolicy)
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = DefaultBreakerConfig().Name
	}

	schema, err := collector.NewSchema(cfg.Envelope, cfg.Rules)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		schema:   schema,
		window:   window,
		inserter: ins,
		breaker:  NewCircuitBreaker(cfg.Breaker),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Window returns the dedup window.
func (p *Pipeline) Window() *dedup.Window { return p.window }

// BreakerState returns the inserter breaker state name.
func (p *Pipeline) BreakerState() string { return p.breaker.State().String() }

// Process streams r into a new session in chunks and ends it. Read errors
// end the session, dropping any envelope that had not closed yet.
func (p *Pipeline) Process(ctx context.Context, r io.Reader) (Summary, error) {
	s := p.NewSession(ctx)
	buf := make([]byte, DefaultChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := s.Feed(buf[:n]); ferr != nil {
				return s.summary, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sum, endErr := s.End()
			return sum, errors.Join(fmt.Errorf("%w: %w", ErrRead, err), endErr)
		}
	}
	return s.End()
}

// deviceKey picks the dedup key from a candidate.
func (p *Pipeline) deviceKey(c collector.Candidate) string {
	var primary string
	switch p.cfg.DeviceKeyRole {
	case collector.RoleMAC:
		primary = c.MAC
	case collector.RoleDeviceName:
		primary = c.DeviceName
	default:
		primary = c.Serial
	}
	for _, k := range []string{primary, c.Serial, c.MAC, c.DeviceName} {
		if k != "" {
			return k
		}
	}
	return "unknown"
}

// assemble builds the record for an accepted candidate.
func (p *Pipeline) assemble(ctx context.Context, c collector.Candidate, key string, d dedup.Decision) Record {
	rec := Record{
		ID:         p.newID(),
		MAC:        c.MAC,
		Serial:     c.Serial,
		DeviceName: c.DeviceName,
		DeviceKey:  key,
		Plate:      d.Plate,
		Grammar:    d.Grammar,
		TargetType: c.TargetType,
		ReceivedAt: p.now().UTC(),
	}

	if c.Image == "" {
		return rec
	}
	img, err := DecodeImage(c.Image)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("discarding undecodable image")
		return rec
	}
	rec.Image = img

	if p.reader != nil {
		camNo, err := p.reader.CameraNumber(ctx, img)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("camera number not recognized")
		} else {
			rec.CameraNo = camNo
		}
	}
	return rec
}

// insert calls the inserter once under the breaker and dispatch timeout.
func (p *Pipeline) insert(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.breaker.Execute(func() (struct{}, error) {
		done := make(chan error, 1)
		go func() { done <- p.inserter.Insert(ctx, rec) }()
		select {
		case err := <-done:
			return struct{}{}, err
		case <-ctx.Done():
			return struct{}{}, fmt.Errorf("%w after %s", ErrDispatchTimeout, p.cfg.DispatchTimeout)
		}
	})
	metrics.RecordDispatch(time.Since(start), err, dispatchReason(err))
	return err
}

func dispatchReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDispatchTimeout):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "insert"
	}
}

// DecodeImage decodes the base64 image text captured from a payload. Data
// URI prefixes and embedded whitespace are tolerated.
func DecodeImage(text string) ([]byte, error) {
	if i := strings.Index(text, ";base64,"); i >= 0 && strings.HasPrefix(text, "data:") {
		text = text[i+len(";base64,"):]
	}
	text = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, text)

	img, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(text, "=")); rerr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
