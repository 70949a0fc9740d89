// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import "errors"

// ErrDispatch wraps every failed insert of an accepted detection.
var ErrDispatch = errors.New("ingest: dispatch failed")

// ErrDispatchTimeout is returned when the inserter does not finish within
// the dispatch timeout.
var ErrDispatchTimeout = errors.New("ingest: dispatch timed out")

// ErrSessionEnded is returned when a session is used after End.
var ErrSessionEnded = errors.New("ingest: session already ended")

// ErrRead wraps errors from the inbound stream.
var ErrRead = errors.New("ingest: reading payload")

// ErrNilInserter is returned by New without an inserter.
var ErrNilInserter = errors.New("ingest: inserter cannot be nil")
