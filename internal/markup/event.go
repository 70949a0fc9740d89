// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package markup

import "fmt"

// Kind identifies the type of a tokenizer event.
type Kind uint8

const (
	// KindOpen is an opening tag. Self-closing tags produce an Open followed by a Close.
	KindOpen Kind = iota + 1
	// KindText is character data between tags, entities already decoded.
	KindText
	// KindCDATA is the verbatim body of a <![CDATA[...]]> section.
	KindCDATA
	// KindClose is a closing tag, including implicit closes and unmatched closes.
	KindClose
	// KindMalformed reports a recoverable irregularity. Parsing continues.
	KindMalformed
	// KindFatal reports an unrecoverable stream. No events follow it.
	KindFatal
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindText:
		return "text"
	case KindCDATA:
		return "cdata"
	case KindClose:
		return "close"
	case KindMalformed:
		return "malformed"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Anomaly classifies a recoverable markup irregularity.
type Anomaly string

// Recoverable anomaly kinds reported through KindMalformed events.
const (
	AnomalyUnmatchedClose     Anomaly = "unmatched-close"
	AnomalyUnclosedBeforeEnd  Anomaly = "unclosed-before-close"
	AnomalyUnquotedAttribute  Anomaly = "unquoted-attribute"
	AnomalyAttributeNoValue   Anomaly = "attribute-without-value"
	AnomalyDuplicateAttribute Anomaly = "duplicate-attribute"
	AnomalyBadEntity          Anomaly = "bad-entity"
	AnomalyStrayLessThan      Anomaly = "stray-lt"
	AnomalyStraySlash         Anomaly = "stray-slash"
	AnomalyUnexpectedChar     Anomaly = "unexpected-char"
	AnomalyUnclosedAtEnd      Anomaly = "unclosed-at-end"
)

// Attr is a single attribute of an opening tag.
type Attr struct {
	Name  string
	Value string
}

// Event is one item of the tokenizer output.
//
// Name is set for Open and Close. Data carries the text for Text and CDATA
// and a human readable detail for Malformed and Fatal. Anomaly is set only
// for Malformed events.
type Event struct {
	Kind    Kind
	Name    string
	Attrs   []Attr
	Data    string
	Anomaly Anomaly
}

// Attr returns the value of the named attribute and whether it was present.
func (e Event) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Handler receives tokenizer events in stream order.
type Handler interface {
	Handle(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) { f(ev) }
