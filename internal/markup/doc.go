// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

/*
Package markup provides a streaming, error tolerant tokenizer for the
XML-like payloads pushed by IP cameras.

Camera firmware reliably emits markup a strict parser rejects: duplicate
closing tags, closing tags for elements that were never opened, and
unquoted attribute values. A strict parser stops at the first such error
and every field after it is lost. The Tokenizer instead reports these as
Malformed events and keeps going.

# Events

	open(name, attrs)   opening or self-closing tag
	text(data)          character data, entities decoded
	cdata(data)         CDATA section body, verbatim
	close(name)         closing tag (explicit, implicit or unmatched)
	malformed(kind)     recoverable irregularity, tokenizing continues
	fatal(detail)       unrecoverable, always the last event

# Usage

	tok := markup.NewTokenizer(markup.HandlerFunc(func(ev markup.Event) {
	    // dispatch on ev.Kind
	}), markup.DefaultOptions())

	for chunk := range chunks {
	    tok.Feed(chunk)
	}
	if err := tok.End(); err != nil {
	    // markup.ErrFatal
	}

# Scope

Namespaces, DTDs and schema validation are not supported. Comments,
processing instructions and declarations are skipped.
*/
package markup
