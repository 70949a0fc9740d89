// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/platewatch/internal/dedup"
	"github.com/tomtom215/platewatch/internal/metrics"
)

type fakeWindow struct {
	sweeps  atomic.Int32
	removed int
	devices int
}

func (f *fakeWindow) Sweep() int {
	f.sweeps.Add(1)
	return f.removed
}

func (f *fakeWindow) Len() int { return f.devices }

func TestNewSweeperService_DefaultInterval(t *testing.T) {
	svc := NewSweeperService(&fakeWindow{}, 0)
	if svc.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", svc.interval)
	}
	if svc.String() != "dedup-sweeper" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestSweeperService_Serve(t *testing.T) {
	w := &fakeWindow{removed: 2, devices: 3}
	svc := NewSweeperService(w, 5*time.Millisecond)

	before := testutil.ToFloat64(metrics.DedupExpired)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.sweeps.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	if got := testutil.ToFloat64(metrics.DedupExpired) - before; got < 4 {
		t.Errorf("expired counter delta = %v, want >= 4", got)
	}
	if got := testutil.ToFloat64(metrics.DedupDevices); got != 3 {
		t.Errorf("devices gauge = %v, want 3", got)
	}
}

func TestSweeperService_RealWindow(t *testing.T) {
	w := dedup.NewWindow(nil, dedup.Config{TTL: time.Nanosecond})
	if d := w.Accept("SN-1", "AB12CD3456"); !d.Accepted() {
		t.Fatalf("Accept() = %v", d.Outcome)
	}
	time.Sleep(time.Millisecond)

	NewSweeperService(w, time.Minute).sweep()
	if w.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", w.Len())
	}
}
