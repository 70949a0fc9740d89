// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ingest

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/platewatch/internal/logging"
	"github.com/tomtom215/platewatch/internal/metrics"
)

// BreakerConfig configures the circuit breaker around the inserter.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that trips it.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the breaker settings used for persistence.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "inserter",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewCircuitBreaker creates a breaker that trips on consecutive failures
// and mirrors its state into metrics.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](settings)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
