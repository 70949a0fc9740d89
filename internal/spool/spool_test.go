// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

//go:build wal

package spool

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/platewatch/internal/ingest"
)

type flakyInserter struct {
	mu      sync.Mutex
	fail    bool
	records map[string]ingest.Record
	calls   int
}

func newFlaky(fail bool) *flakyInserter {
	return &flakyInserter{fail: fail, records: make(map[string]ingest.Record)}
}

func (f *flakyInserter) Insert(_ context.Context, rec ingest.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("database unavailable")
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *flakyInserter) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyInserter) get(id string) (ingest.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

func createTestConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled:          true,
		Path:             filepath.Join(t.TempDir(), "spool"),
		SyncWrites:       false,
		RetryInterval:    20 * time.Millisecond,
		MaxAttempts:      3,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 16 << 20,
	}
}

func openTestSpool(t *testing.T, cfg Config, target ingest.Inserter) *Spool {
	t.Helper()
	s, err := Open(cfg, target)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id string) ingest.Record {
	return ingest.Record{
		ID:         id,
		DeviceKey:  "SN-1",
		Plate:      "AB12CD3456",
		Grammar:    "ten-mixed",
		Image:      []byte{0xff, 0xd8, 0xff},
		ReceivedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSpool_DeliversImmediately(t *testing.T) {
	target := newFlaky(false)
	s := openTestSpool(t, createTestConfig(t), target)

	if err := s.Insert(context.Background(), testRecord("r1")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	got, ok := target.get("r1")
	if !ok || string(got.Image) != "\xff\xd8\xff" {
		t.Fatalf("target record = %+v, %v", got, ok)
	}
	if st := s.Stats(); st.Pending != 0 || st.Delivered != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSpool_QueuesOnFailureAndDrains(t *testing.T) {
	target := newFlaky(true)
	s := openTestSpool(t, createTestConfig(t), target)
	ctx := context.Background()

	if err := s.Insert(ctx, testRecord("r1")); err != nil {
		t.Fatalf("Insert() should succeed once queued, got %v", err)
	}
	if st := s.Stats(); st.Pending != 1 {
		t.Fatalf("Pending = %d, want 1", st.Pending)
	}

	target.setFail(false)
	res, err := s.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 1 {
		t.Errorf("Drain() = %+v", res)
	}
	got, ok := target.get("r1")
	if !ok || got.Plate != "AB12CD3456" || len(got.Image) != 3 {
		t.Errorf("delivered record = %+v", got)
	}
	if st := s.Stats(); st.Pending != 0 {
		t.Errorf("Pending after drain = %d", st.Pending)
	}
}

func TestSpool_DeadLetters(t *testing.T) {
	target := newFlaky(true)
	s := openTestSpool(t, createTestConfig(t), target)
	ctx := context.Background()

	_ = s.Insert(ctx, testRecord("r1"))
	for i := 0; i < 2; i++ {
		if _, err := s.Drain(ctx); err != nil {
			t.Fatal(err)
		}
	}

	dead, err := s.DeadLetters()
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].ID != "r1" {
		t.Fatalf("DeadLetters() = %+v", dead)
	}
	st := s.Stats()
	if st.Pending != 0 || st.Dead != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	res, _ := s.Drain(ctx)
	if res.Delivered+res.Failed+res.Dead != 0 {
		t.Errorf("dead entries must not be retried: %+v", res)
	}
}

func TestSpool_SurvivesReopen(t *testing.T) {
	cfg := createTestConfig(t)
	target := newFlaky(true)

	s, err := Open(cfg, target)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Insert(context.Background(), testRecord("r1"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	target.setFail(false)
	s = openTestSpool(t, cfg, target)
	res, err := s.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 1 {
		t.Errorf("Drain() after reopen = %+v", res)
	}
}

func TestSpool_ServeRetries(t *testing.T) {
	target := newFlaky(true)
	s := openTestSpool(t, createTestConfig(t), target)

	_ = s.Insert(context.Background(), testRecord("r1"))
	target.setFail(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := target.get("r1"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
	if _, ok := target.get("r1"); !ok {
		t.Error("retry loop did not deliver the queued record")
	}
}

func TestSpool_Closed(t *testing.T) {
	s := openTestSpool(t, createTestConfig(t), newFlaky(false))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := s.Insert(context.Background(), testRecord("r1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert after Close = %v", err)
	}
	if _, err := s.Drain(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Drain after Close = %v", err)
	}
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open(createTestConfig(t), nil); !errors.Is(err, ErrNilTarget) {
		t.Errorf("nil target = %v", err)
	}
	if _, err := Open(Config{}, newFlaky(false)); err == nil {
		t.Error("expected error for empty path")
	}
}
