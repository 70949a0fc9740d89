// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

//go:build !wal

package spool

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/platewatch/internal/ingest"
)

func TestStubSpool_PassesThrough(t *testing.T) {
	var got []string
	target := ingest.InserterFunc(func(_ context.Context, rec ingest.Record) error {
		got = append(got, rec.ID)
		return nil
	})
	s, err := Open(DefaultConfig(), target)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Insert(context.Background(), ingest.Record{ID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "r1" {
		t.Errorf("target got %v", got)
	}
	if st := s.Stats(); st.Delivered != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestStubSpool_ReturnsTargetError(t *testing.T) {
	boom := errors.New("db down")
	s, _ := Open(DefaultConfig(), ingest.InserterFunc(func(context.Context, ingest.Record) error { return boom }))
	if err := s.Insert(context.Background(), ingest.Record{ID: "r1"}); !errors.Is(err, boom) {
		t.Errorf("Insert() = %v, want target error", err)
	}
}

func TestStubSpool_Closed(t *testing.T) {
	s, _ := Open(DefaultConfig(), ingest.InserterFunc(func(context.Context, ingest.Record) error { return nil }))
	_ = s.Close()
	if err := s.Insert(context.Background(), ingest.Record{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert after Close = %v", err)
	}
	if _, err := Open(DefaultConfig(), nil); !errors.Is(err, ErrNilTarget) {
		t.Errorf("nil target = %v", err)
	}
}
