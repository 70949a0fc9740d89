// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package collector turns tokenizer events into detection candidates by
// selecting the Nth occurrence of configured fields inside an envelope tag.
package collector

import (
	"fmt"
	"strings"

	"github.com/tomtom215/platewatch/internal/markup"
)

// State is the collector's position relative to the envelope.
type State uint8

// Collector states.
const (
	StateIdle State = iota
	StateInScope
	StateFieldOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInScope:
		return "in-scope"
	case StateFieldOpen:
		return "field-open"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Candidate is the set of values selected from one closed envelope.
// Empty strings mean the field was absent.
type Candidate struct {
	MAC        string
	Serial     string
	DeviceName string
	Plate      string
	TargetType string
	// Image is the raw captured image text, usually base64.
	Image string
	// Fields holds every selected value keyed by tag name.
	Fields map[string]string
}

// Schema is an immutable, validated envelope and rule set. It is safe to
// share between goroutines; each stream gets its own Collector.
type Schema struct {
	envelope string
	rules    map[string]Rule
}

// NewSchema validates the envelope and rules.
func NewSchema(envelope string, rules []Rule) (*Schema, error) {
	if envelope == "" {
		return nil, ErrNoEnvelope
	}

	s := &Schema{
		envelope: envelope,
		rules:    make(map[string]Rule, len(rules)),
	}
	roles := make(map[Role]string)
	for _, r := range rules {
		if err := validateRule(r, envelope); err != nil {
			return nil, err
		}
		if _, dup := s.rules[r.Field]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, r.Field)
		}
		if r.Role != RoleNone {
			if other, dup := roles[r.Role]; dup {
				return nil, fmt.Errorf("%w: %q used by %q and %q", ErrDuplicateRole, r.Role, other, r.Field)
			}
			roles[r.Role] = r.Field
		}
		r.Transforms = append([]Transform(nil), r.Transforms...)
		s.rules[r.Field] = r
	}
	return s, nil
}

// Envelope returns the envelope tag name.
func (s *Schema) Envelope() string { return s.envelope }

// Rule returns the rule for a field.
func (s *Schema) Rule(field string) (Rule, bool) {
	r, ok := s.rules[field]
	return r, ok
}

// Stats counts scope lifecycles seen by a Collector.
type Stats struct {
	Opened    int
	Emitted   int
	Discarded int
}

// Collector is the per-stream state machine. It implements markup.Handler.
// It is not safe for concurrent use.
type Collector struct {
	schema *Schema
	emit   func(Candidate)

	state    State
	current  string
	capture  bool // current occurrence is the one the rule selects
	text     strings.Builder
	counters map[string]int
	selected map[string]string

	stats Stats
}

// NewCollector creates a collector that calls emit once per closed envelope.
func (s *Schema) NewCollector(emit func(Candidate)) *Collector {
	return &Collector{
		schema:   s,
		emit:     emit,
		counters: make(map[string]int, len(s.rules)),
		selected: make(map[string]string, len(s.rules)),
	}
}

// State returns the current state.
func (c *Collector) State() State { return c.state }

// Stats returns scope counters.
func (c *Collector) Stats() Stats { return c.stats }

// Handle applies one event.
func (c *Collector) Handle(ev markup.Event) {
	switch ev.Kind {
	case markup.KindOpen:
		c.onOpen(ev.Name)
	case markup.KindText, markup.KindCDATA:
		if c.state == StateFieldOpen && c.capture {
			c.text.WriteString(ev.Data)
		}
	case markup.KindClose:
		c.onClose(ev.Name)
	case markup.KindFatal:
		c.discard()
	case markup.KindMalformed:
		// Closes for unmatched tags arrive as KindClose and are handled there.
	}
}

// End finalizes the stream. A scope that never closed is discarded. It
// reports whether a partial scope was dropped.
func (c *Collector) End() bool {
	return c.discard()
}

func (c *Collector) onOpen(name string) {
	if name == c.schema.envelope {
		if c.state != StateIdle {
			c.stats.Discarded++
		}
		c.reset()
		c.state = StateInScope
		c.stats.Opened++
		return
	}
	if c.state == StateIdle {
		return
	}
	if rule, ok := c.schema.rules[name]; ok {
		c.current = name
		c.capture = c.counters[name]+1 == rule.Ordinal
		c.text.Reset()
		c.state = StateFieldOpen
	}
}

func (c *Collector) onClose(name string) {
	if c.state == StateIdle {
		return
	}
	if name == c.schema.envelope {
		c.finalize()
		return
	}
	if c.state != StateFieldOpen || name != c.current {
		return
	}

	rule := c.schema.rules[name]
	c.counters[name]++
	if c.counters[name] == rule.Ordinal {
		if _, done := c.selected[name]; !done {
			if v, err := rule.apply(c.text.String()); err == nil {
				c.selected[name] = v
			}
		}
	}
	c.current = ""
	c.capture = false
	c.text.Reset()
	c.state = StateInScope
}

func (c *Collector) finalize() {
	cand := Candidate{Fields: make(map[string]string, len(c.selected))}
	for field, v := range c.selected {
		cand.Fields[field] = v
		switch c.schema.rules[field].Role {
		case RoleMAC:
			cand.MAC = v
		case RoleSerial:
			cand.Serial = v
		case RoleDeviceName:
			cand.DeviceName = v
		case RolePlate:
			cand.Plate = v
		case RoleTargetType:
			cand.TargetType = v
		case RoleImage:
			cand.Image = v
		case RoleNone:
		}
	}
	c.reset()
	c.state = StateIdle
	c.stats.Emitted++
	c.emit(cand)
}

func (c *Collector) discard() bool {
	if c.state == StateIdle {
		return false
	}
	c.reset()
	c.state = StateIdle
	c.stats.Discarded++
	return true
}

func (c *Collector) reset() {
	c.current = ""
	c.capture = false
	c.text.Reset()
	clear(c.counters)
	clear(c.selected)
}
