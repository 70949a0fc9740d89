// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package eventbus publishes accepted detections to a Watermill message
// bus. The NATS transport is compiled with -tags nats.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/platewatch/internal/ingest"
	"github.com/tomtom215/platewatch/internal/metrics"
)

var (
	// ErrUnavailable is returned when the binary was built without NATS.
	ErrUnavailable = errors.New("eventbus: NATS not available, build with -tags=nats")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("eventbus: publisher closed")
)

// Config configures the bus.
type Config struct {
	Enabled bool
	URL     string
	// SubjectPrefix is prepended to every topic.
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	// JetStream publishes with message ID tracking. The stream is created
	// on first publish when it does not exist.
	JetStream bool
}

// DefaultConfig returns defaults for a local NATS server.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		URL:             "nats://127.0.0.1:4222",
		SubjectPrefix:   "platewatch",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 << 20,
		JetStream:       false,
	}
}

// DetectionEvent is the published message body.
type DetectionEvent struct {
	ID         string    `json:"id"`
	DeviceKey  string    `json:"device_key"`
	MAC        string    `json:"mac,omitempty"`
	Serial     string    `json:"serial,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	Plate      string    `json:"plate"`
	Grammar    string    `json:"grammar"`
	TargetType string    `json:"target_type,omitempty"`
	CameraNo   string    `json:"camera_no,omitempty"`
	HasImage   bool      `json:"has_image"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventFromRecord converts an accepted record. The image is not published.
func EventFromRecord(rec ingest.Record) DetectionEvent {
	return DetectionEvent{
		ID:         rec.ID,
		DeviceKey:  rec.DeviceKey,
		MAC:        rec.MAC,
		Serial:     rec.Serial,
		DeviceName: rec.DeviceName,
		Plate:      rec.Plate,
		Grammar:    rec.Grammar,
		TargetType: rec.TargetType,
		CameraNo:   rec.CameraNo,
		HasImage:   rec.HasImage(),
		ReceivedAt: rec.ReceivedAt,
	}
}

// Publisher turns records into messages on a Watermill publisher.
type Publisher struct {
	pub     message.Publisher
	prefix  string
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. Publishes run under a circuit breaker so an
// unreachable bus fails fast.
func NewPublisher(pub message.Publisher, cfg Config) *Publisher {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{
		pub:    pub,
		prefix: prefix,
		breaker: ingest.NewCircuitBreaker(ingest.BreakerConfig{
			Name:             "eventbus",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		}),
	}
}

// Topic returns the subject a device's detections are published on.
func (p *Publisher) Topic(deviceKey string) string {
	return p.prefix + ".detections." + subjectToken(deviceKey)
}

// NewMessage builds the message for rec. The record ID doubles as the
// message UUID so JetStream can deduplicate redeliveries.
func NewMessage(rec ingest.Record) (*message.Message, error) {
	data, err := json.Marshal(EventFromRecord(rec))
	if err != nil {
		return nil, fmt.Errorf("marshal detection: %w", err)
	}
	msg := message.NewMessage(rec.ID, data)
	msg.Metadata.Set("device_key", rec.DeviceKey)
	msg.Metadata.Set("plate", rec.Plate)
	msg.Metadata.Set("grammar", rec.Grammar)
	return msg, nil
}

// Insert implements ingest.Inserter.
func (p *Publisher) Insert(ctx context.Context, rec ingest.Record) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	msg, err := NewMessage(rec)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(p.Topic(rec.DeviceKey), msg)
	})
	metrics.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("publish detection %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the underlying publisher. It is idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}

// subjectToken makes a device key safe as a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
