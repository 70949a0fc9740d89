// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package ocr reads the text overlay that cameras burn into detection
// snapshots. Recognition shells out to the tesseract CLI; the snapshot is
// converted to a thresholded grayscale image first.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/platewatch/internal/metrics"
)

// ErrNoCameraNumber is returned when the overlay has no camera number.
var ErrNoCameraNumber = errors.New("ocr: camera number not found")

// Config configures a Recognizer.
type Config struct {
	Binary    string
	Language  string
	Threshold uint8
	// Timeout bounds one recognition, including the rate limit wait.
	Timeout time.Duration
	// Rate and Burst limit recognitions per second. Rate <= 0 disables
	// limiting.
	Rate  float64
	Burst int
	// CameraNoLength truncates the recognized camera number.
	CameraNoLength int
}

// DefaultConfig returns settings for the stock camera overlay.
func DefaultConfig() Config {
	return Config{
		Binary:         "tesseract",
		Language:       "eng",
		Threshold:      200,
		Timeout:        10 * time.Second,
		Rate:           2,
		Burst:          4,
		CameraNoLength: 7,
	}
}

// Runner executes the OCR binary with stdin and returns stdout.
type Runner func(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error)

// Option customizes a Recognizer.
type Option func(*Recognizer)

// WithRunner replaces process execution. Tests use it to avoid needing
// tesseract installed.
func WithRunner(run Runner) Option {
	return func(r *Recognizer) { r.run = run }
}

// Recognizer runs OCR on snapshots. It is safe for concurrent use.
type Recognizer struct {
	cfg     Config
	limiter *rate.Limiter
	run     Runner
}

// New creates a Recognizer.
func New(cfg Config, opts ...Option) (*Recognizer, error) {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	r := &Recognizer{cfg: cfg, run: execRunner}
	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.run == nil {
		return nil, errors.New("ocr: runner cannot be nil")
	}
	return r, nil
}

// Text preprocesses a snapshot and returns the recognized text.
func (r *Recognizer) Text(ctx context.Context, image []byte) (string, error) {
	// Timeout covers both the rate limit wait and the tesseract run.
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("ocr: rate limit: %w", err)
		}
	}

	img, err := Preprocess(image, r.cfg.Threshold)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}

	out, err := r.run(ctx, r.cfg.Binary, []string{"stdin", "stdout", "-l", r.cfg.Language}, img)
	if err != nil {
		return "", fmt.Errorf("ocr: %s: %w", r.cfg.Binary, err)
	}
	return string(out), nil
}

// CameraNumber implements ingest.CameraNumberReader.
func (r *Recognizer) CameraNumber(ctx context.Context, image []byte) (string, error) {
	start := time.Now()
	text, err := r.Text(ctx, image)
	if err != nil {
		metrics.RecordOCR(time.Since(start), err, false)
		return "", err
	}

	camNo := truncate(ExtractFields(text)[FieldCameraNo], r.cfg.CameraNoLength)
	metrics.RecordOCR(time.Since(start), nil, camNo != "")
	if camNo == "" {
		return "", ErrNoCameraNumber
	}
	return camNo, nil
}

func execRunner(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
