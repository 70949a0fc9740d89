// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/platewatch/internal/ingest"
)

func testRecord() ingest.Record {
	return ingest.Record{
		ID:         "rec-1",
		DeviceKey:  "SN.0042",
		Serial:     "SN.0042",
		Plate:      "AB12CD3456",
		Grammar:    "ten-mixed",
		Image:      []byte{1, 2, 3},
		ReceivedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Insert(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer bus.Close()

	p := NewPublisher(bus, Config{SubjectPrefix: "test"})
	topic := p.Topic("SN.0042")
	if topic != "test.detections.SN_0042" {
		t.Fatalf("Topic() = %q", topic)
	}

	msgs, err := bus.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Insert(context.Background(), testRecord()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.UUID != "rec-1" || msg.Metadata.Get("plate") != "AB12CD3456" {
			t.Errorf("message = %s %v", msg.UUID, msg.Metadata)
		}
		var ev DetectionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatal(err)
		}
		if !ev.HasImage || ev.Plate != "AB12CD3456" || ev.DeviceKey != "SN.0042" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls++
	return errors.New("nats: no servers available")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublisher_BreakerOpens(t *testing.T) {
	fp := &failingPublisher{}
	p := NewPublisher(fp, DefaultConfig())

	for i := 0; i < 7; i++ {
		if err := p.Insert(context.Background(), testRecord()); err == nil {
			t.Fatal("expected publish error")
		}
	}
	if fp.calls != 5 {
		t.Errorf("publisher called %d times, want 5 before breaker opened", fp.calls)
	}
}

func TestPublisher_Closed(t *testing.T) {
	p := NewPublisher(&failingPublisher{}, DefaultConfig())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := p.Insert(context.Background(), testRecord()); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert after Close = %v", err)
	}
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"":            "unknown",
		"SN-1":        "SN-1",
		"a.b*c>d e":   "a_b_c_d_e",
		"00:1A:2B:3C": "00:1A:2B:3C",
	}
	for in, want := range tests {
		if got := subjectToken(in); got != want {
			t.Errorf("subjectToken(%q) = %q, want %q", in, got, want)
		}
	}
}
