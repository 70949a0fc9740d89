// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package dedup implements the bounded per-device history used to suppress
// repeated plate detections within and across devices.
package dedup

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/platewatch/internal/plate"
)

// DefaultCapacity is the number of recent plates remembered per device.
const DefaultCapacity = 5

// Outcome is the result of an acceptance decision.
type Outcome string

// Decision outcomes.
const (
	Accepted            Outcome = "accepted"
	RejectedInvalid     Outcome = "invalid"
	RejectedSameDevice  Outcome = "duplicate-same-device"
	RejectedCrossDevice Outcome = "duplicate-cross-device"
)

// Decision describes how Accept classified a detection.
type Decision struct {
	Outcome Outcome
	// Plate is the normalized plate that was checked.
	Plate string
	// Grammar is the matching plate grammar, empty when invalid.
	Grammar string
}

// Accepted reports whether the detection was new.
func (d Decision) Accepted() bool { return d.Outcome == Accepted }

// Config configures a Window.
type Config struct {
	// Capacity is the history size per device. Defaults to DefaultCapacity.
	Capacity int
	// TTL expires history entries older than this. Zero disables expiry.
	TTL time.Duration
}

// Entry is one remembered plate.
type Entry struct {
	Plate      string    `json:"plate"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Window remembers recently accepted plates per device and rejects repeats
// on the same device or on any other device.
//
// Every operation holds a single mutex for its whole read-modify-write
// sequence, so two concurrent detections of one plate can never both be
// accepted.
type Window struct {
	mu sync.Mutex

	validator *plate.Validator
	capacity  int
	ttl       time.Duration
	now       func() time.Time

	histories map[string][]Entry
	// refs counts history entries per plate across all devices.
	refs map[string]int
}

// NewWindow creates a window that validates plates with v.
func NewWindow(v *plate.Validator, cfg Config) *Window {
	if v == nil {
		v = plate.Default()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Window{
		validator: v,
		capacity:  cfg.Capacity,
		ttl:       cfg.TTL,
		now:       time.Now,
		histories: make(map[string][]Entry),
		refs:      make(map[string]int),
	}
}

// Capacity returns the per-device history size.
func (w *Window) Capacity() int { return w.capacity }

// Accept decides whether plate reported by deviceKey is novel. Accepted
// plates are recorded immediately.
func (w *Window) Accept(deviceKey, candidate string) Decision {
	res := w.validator.Validate(candidate)
	d := Decision{Outcome: RejectedInvalid, Plate: res.Plate, Grammar: res.Grammar}
	if !res.Valid {
		return d
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.ttl > 0 {
		w.expireLocked(now)
	}

	hist := w.histories[deviceKey]
	if indexOf(hist, res.Plate) >= 0 {
		d.Outcome = RejectedSameDevice
		return d
	}
	if w.refs[res.Plate] > 0 {
		d.Outcome = RejectedCrossDevice
		return d
	}

	hist = append(hist, Entry{Plate: res.Plate, AcceptedAt: now})
	w.refs[res.Plate]++
	if len(hist) > w.capacity {
		w.unref(hist[0].Plate)
		hist = append(hist[:0:0], hist[1:]...)
	}
	w.histories[deviceKey] = hist

	d.Outcome = Accepted
	return d
}

// Release forgets the accepted plate p for deviceKey. It reports
// whether the plate was still in the device's history.
func (w *Window) Release(deviceKey, p string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	hist := w.histories[deviceKey]
	i := indexOf(hist, p)
	if i < 0 {
		return false
	}
	hist = append(hist[:i:i], hist[i+1:]...)
	w.unref(p)
	if len(hist) == 0 {
		delete(w.histories, deviceKey)
	} else {
		w.histories[deviceKey] = hist
	}
	return true
}

// Sweep drops entries older than the TTL and devices with no entries left.
// It returns the number of entries removed. It is a no-op without a TTL.
func (w *Window) Sweep() int {
	if w.ttl <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expireLocked(w.now())
}

func (w *Window) expireLocked(now time.Time) int {
	cutoff := now.Add(-w.ttl)
	removed := 0
	for key, hist := range w.histories {
		// Entries are in acceptance order, so expired ones form a prefix.
		n := 0
		for n < len(hist) && hist[n].AcceptedAt.Before(cutoff) {
			w.unref(hist[n].Plate)
			n++
		}
		if n == 0 {
			continue
		}
		removed += n
		if n == len(hist) {
			delete(w.histories, key)
		} else {
			w.histories[key] = append(hist[:0:0], hist[n:]...)
		}
	}
	return removed
}

func (w *Window) unref(p string) {
	if w.refs[p] <= 1 {
		delete(w.refs, p)
		return
	}
	w.refs[p]--
}

// History returns the plates remembered for deviceKey, oldest first.
func (w *Window) History(deviceKey string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.histories[deviceKey]...)
}

// DeviceHistory is one device's history in a Snapshot.
type DeviceHistory struct {
	DeviceKey string  `json:"device_key"`
	Entries   []Entry `json:"entries"`
}

// Snapshot returns all histories sorted by device key.
func (w *Window) Snapshot() []DeviceHistory {
	w.mu.Lock()
	out := make([]DeviceHistory, 0, len(w.histories))
	for key, hist := range w.histories {
		out = append(out, DeviceHistory{DeviceKey: key, Entries: append([]Entry(nil), hist...)})
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceKey < out[j].DeviceKey })
	return out
}

// Len returns the number of devices with history.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.histories)
}

func indexOf(hist []Entry, p string) int {
	for i, e := range hist {
		if e.Plate == p {
			return i
		}
	}
	return -1
}
