// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package markup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatal is returned by End when the stream could not be resynchronized.
var ErrFatal = errors.New("markup: unrecoverable stream")

// Default limits.
const (
	DefaultMaxNameLen = 256
)

// Options controls tokenizer behavior.
type Options struct {
	// TrimText strips leading and trailing whitespace from text runs and
	// drops runs that are empty after trimming.
	TrimText bool

	// MaxNameLen bounds tag and attribute names. Exceeding it is fatal.
	MaxNameLen int
}

// DefaultOptions returns the options used for camera payloads.
func DefaultOptions() Options {
	return Options{
		TrimText:   true,
		MaxNameLen: DefaultMaxNameLen,
	}
}

type state uint8

const (
	stText state = iota
	stTagOpen
	stOpenName
	stAttrs
	stAttrName
	stAttrAfterName
	stAttrValueStart
	stAttrQuoted
	stAttrUnquoted
	stAttrUnquotedSlash
	stSelfClose
	stCloseName
	stCloseTail
	stBang
	stComment
	stCDATA
	stDecl
	stPI
)

var stateNames = [...]string{
	stText:              "text",
	stTagOpen:           "tag start",
	stOpenName:          "tag name",
	stAttrs:             "tag attributes",
	stAttrName:          "attribute name",
	stAttrAfterName:     "attribute name",
	stAttrValueStart:    "attribute value",
	stAttrQuoted:        "quoted attribute value",
	stAttrUnquoted:      "unquoted attribute value",
	stAttrUnquotedSlash: "unquoted attribute value",
	stSelfClose:         "self-closing tag",
	stCloseName:         "closing tag name",
	stCloseTail:         "closing tag",
	stBang:              "markup declaration",
	stComment:           "comment",
	stCDATA:             "CDATA section",
	stDecl:              "declaration",
	stPI:                "processing instruction",
}

const cdataOpen = "[CDATA["

// Tokenizer is a push-based, error tolerant tokenizer for XML-like markup.
//
// Bytes are fed in arbitrary chunks; any construct may span chunk
// boundaries. Irregularities that leave the stream parseable are reported
// as Malformed events and tokenizing continues. Only a stream that ends in
// the middle of a construct, or a name beyond MaxNameLen, produces a single
// Fatal event, after which the tokenizer is inert.
//
// A Tokenizer is not safe for concurrent use.
type Tokenizer struct {
	h    Handler
	opts Options

	st    state
	text  []byte
	name  []byte
	attrs []Attr

	attrName []byte
	attrVal  []byte
	quote    byte

	bang  []byte
	cdata []byte
	run   int // consecutive '-' in a comment, or last byte was '?' in a PI
	depth int // bracket depth inside a declaration

	stack []string

	done  bool
	fatal bool
}

// NewTokenizer creates a tokenizer that delivers events to h.
func NewTokenizer(h Handler, opts Options) *Tokenizer {
	if opts.MaxNameLen <= 0 {
		opts.MaxNameLen = DefaultMaxNameLen
	}
	return &Tokenizer{h: h, opts: opts}
}

// Feed consumes the next chunk of the stream.
func (t *Tokenizer) Feed(chunk []byte) {
	for i := 0; i < len(chunk) && !t.done; i++ {
		for !t.consume(chunk[i]) {
			if t.done {
				return
			}
		}
	}
}

// End finalizes the stream. Pending text is flushed and elements still open
// are reported as unclosed. It returns ErrFatal when the stream was
// unrecoverable. Calling End more than once is harmless.
func (t *Tokenizer) End() error {
	if t.done {
		if t.fatal {
			return ErrFatal
		}
		return nil
	}

	switch t.st {
	case stText:
		t.flushText()
	case stTagOpen:
		// A trailing '<' starts no markup, so it is kept as text.
		t.malformed(AnomalyStrayLessThan, "'<' at end of stream")
		t.text = append(t.text, '<')
		t.flushText()
	default:
		t.fail(fmt.Sprintf("stream ended inside %s", stateNames[t.st]))
		return ErrFatal
	}

	for i := len(t.stack) - 1; i >= 0; i-- {
		t.malformed(AnomalyUnclosedAtEnd, t.stack[i])
	}
	t.stack = t.stack[:0]
	t.done = true
	return nil
}

// Depth returns the number of currently open elements.
func (t *Tokenizer) Depth() int { return len(t.stack) }

// Failed reports whether a Fatal event has been emitted.
func (t *Tokenizer) Failed() bool { return t.fatal }

// consume processes one byte. It returns false when the byte must be
// processed again in the new state.
func (t *Tokenizer) consume(c byte) bool {
	switch t.st {
	case stText:
		if c == '<' {
			t.st = stTagOpen
		} else {
			t.text = append(t.text, c)
		}

	case stTagOpen:
		switch {
		case c == '/':
			t.flushText()
			t.name = t.name[:0]
			t.st = stCloseName
		case c == '!':
			t.flushText()
			t.bang = t.bang[:0]
			t.st = stBang
		case c == '?':
			t.flushText()
			t.run = 0
			t.st = stPI
		case isNameStart(c):
			t.flushText()
			t.name = append(t.name[:0], c)
			t.attrs = nil
			t.st = stOpenName
		default:
			t.malformed(AnomalyStrayLessThan, "'<' not followed by a tag")
			t.text = append(t.text, '<')
			t.st = stText
			return false
		}

	case stOpenName:
		switch {
		case isNameChar(c):
			t.name = t.appendName(t.name, c)
		case isSpace(c):
			t.st = stAttrs
		case c == '>':
			t.emitOpen(false)
		case c == '/':
			t.st = stSelfClose
		default:
			t.st = stAttrs
			return false
		}

	case stAttrs:
		switch {
		case isSpace(c):
		case c == '>':
			t.emitOpen(false)
		case c == '/':
			t.st = stSelfClose
		case isNameStart(c):
			t.attrName = append(t.attrName[:0], c)
			t.st = stAttrName
		default:
			t.malformed(AnomalyUnexpectedChar, fmt.Sprintf("%q in <%s>", c, t.name))
		}

	case stAttrName:
		switch {
		case isNameChar(c):
			t.attrName = t.appendName(t.attrName, c)
		case c == '=':
			t.st = stAttrValueStart
		case isSpace(c):
			t.st = stAttrAfterName
		case c == '>' || c == '/':
			t.addAttr("", false)
			t.st = stAttrs
			return false
		default:
			t.malformed(AnomalyUnexpectedChar, fmt.Sprintf("%q in attribute %s", c, t.attrName))
		}

	case stAttrAfterName:
		switch {
		case isSpace(c):
		case c == '=':
			t.st = stAttrValueStart
		default:
			t.addAttr("", false)
			t.st = stAttrs
			return false
		}

	case stAttrValueStart:
		switch {
		case isSpace(c):
		case c == '"' || c == '\'':
			t.quote = c
			t.attrVal = t.attrVal[:0]
			t.st = stAttrQuoted
		case c == '>':
			t.malformed(AnomalyUnquotedAttribute, string(t.attrName))
			t.addAttr("", true)
			t.st = stAttrs
			return false
		default:
			t.malformed(AnomalyUnquotedAttribute, string(t.attrName))
			t.attrVal = t.attrVal[:0]
			t.st = stAttrUnquoted
			return false
		}

	case stAttrQuoted:
		if c == t.quote {
			t.addAttr(string(t.attrVal), true)
			t.st = stAttrs
		} else {
			t.attrVal = append(t.attrVal, c)
		}

	case stAttrUnquoted:
		switch {
		case isSpace(c):
			t.addAttr(string(t.attrVal), true)
			t.st = stAttrs
		case c == '>':
			t.addAttr(string(t.attrVal), true)
			t.emitOpen(false)
		case c == '/':
			t.st = stAttrUnquotedSlash
		default:
			t.attrVal = append(t.attrVal, c)
		}

	case stAttrUnquotedSlash:
		if c == '>' {
			t.addAttr(string(t.attrVal), true)
			t.emitOpen(true)
			return true
		}
		t.attrVal = append(t.attrVal, '/')
		t.st = stAttrUnquoted
		return false

	case stSelfClose:
		if c == '>' {
			t.emitOpen(true)
			return true
		}
		t.malformed(AnomalyStraySlash, fmt.Sprintf("'/' in <%s>", t.name))
		t.st = stAttrs
		return false

	case stCloseName:
		switch {
		case len(t.name) == 0 && isNameStart(c), len(t.name) > 0 && isNameChar(c):
			t.name = t.appendName(t.name, c)
		case c == '>':
			t.emitClose()
		case isSpace(c):
			t.st = stCloseTail
		default:
			t.malformed(AnomalyUnexpectedChar, fmt.Sprintf("%q in closing tag", c))
			t.st = stCloseTail
		}

	case stCloseTail:
		if c == '>' {
			t.emitClose()
		}

	case stBang:
		next := append(t.bang, c)
		s := string(next)
		isComment := strings.HasPrefix("--", s)
		isCDATA := strings.HasPrefix(cdataOpen, s)
		switch {
		case s == "--":
			t.run = 0
			t.st = stComment
		case s == cdataOpen:
			t.cdata = t.cdata[:0]
			t.st = stCDATA
		case isComment || isCDATA:
			t.bang = next
		default:
			t.depth = 0
			t.st = stDecl
			return false
		}

	case stComment:
		switch {
		case c == '-':
			t.run++
		case c == '>' && t.run >= 2:
			t.st = stText
		default:
			t.run = 0
		}

	case stCDATA:
		n := len(t.cdata)
		if c == '>' && n >= 2 && t.cdata[n-1] == ']' && t.cdata[n-2] == ']' {
			t.emit(Event{Kind: KindCDATA, Data: string(t.cdata[:n-2])})
			t.cdata = t.cdata[:0]
			t.st = stText
		} else {
			t.cdata = append(t.cdata, c)
		}

	case stDecl:
		switch c {
		case '[':
			t.depth++
		case ']':
			if t.depth > 0 {
				t.depth--
			}
		case '>':
			if t.depth == 0 {
				t.st = stText
			}
		}

	case stPI:
		if c == '>' && t.run == 1 {
			t.st = stText
		} else if c == '?' {
			t.run = 1
		} else {
			t.run = 0
		}
	}

	return true
}

func (t *Tokenizer) appendName(buf []byte, c byte) []byte {
	if len(buf) >= t.opts.MaxNameLen {
		t.fail(fmt.Sprintf("name exceeds %d bytes", t.opts.MaxNameLen))
		return buf
	}
	return append(buf, c)
}

func (t *Tokenizer) addAttr(raw string, hasValue bool) {
	name := string(t.attrName)
	if !hasValue {
		t.malformed(AnomalyAttributeNoValue, name)
	}
	for _, a := range t.attrs {
		if a.Name == name {
			t.malformed(AnomalyDuplicateAttribute, name)
			return
		}
	}
	t.attrs = append(t.attrs, Attr{Name: name, Value: t.decode(raw)})
}

func (t *Tokenizer) emitOpen(selfClosing bool) {
	if t.done {
		return
	}
	name := string(t.name)
	t.emit(Event{Kind: KindOpen, Name: name, Attrs: t.attrs})
	t.attrs = nil
	if selfClosing {
		t.emit(Event{Kind: KindClose, Name: name})
	} else {
		t.stack = append(t.stack, name)
	}
	t.st = stText
}

// emitClose pops the stack down to the matching element. Elements above it
// are closed implicitly. A close without any matching element is still
// delivered so consumers can treat it as a no-op.
func (t *Tokenizer) emitClose() {
	if t.done {
		return
	}
	t.st = stText

	name := string(t.name)
	if name == "" {
		t.malformed(AnomalyUnmatchedClose, "</>")
		return
	}

	idx := -1
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == name {
			idx = i
			break
		}
	}

	if idx < 0 {
		t.malformed(AnomalyUnmatchedClose, name)
		t.emit(Event{Kind: KindClose, Name: name})
		return
	}

	for i := len(t.stack) - 1; i > idx; i-- {
		t.malformed(AnomalyUnclosedBeforeEnd, t.stack[i])
		t.emit(Event{Kind: KindClose, Name: t.stack[i]})
	}
	t.stack = t.stack[:idx]
	t.emit(Event{Kind: KindClose, Name: name})
}

func (t *Tokenizer) flushText() {
	if len(t.text) == 0 {
		return
	}
	s := string(t.text)
	t.text = t.text[:0]

	if t.opts.TrimText {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
	}
	t.emit(Event{Kind: KindText, Data: t.decode(s)})
}

func (t *Tokenizer) decode(s string) string {
	return decodeEntities(s, func(ref string) {
		t.malformed(AnomalyBadEntity, ref)
	})
}

func (t *Tokenizer) malformed(kind Anomaly, detail string) {
	t.emit(Event{Kind: KindMalformed, Anomaly: kind, Data: detail})
}

func (t *Tokenizer) fail(detail string) {
	if t.done {
		return
	}
	t.emit(Event{Kind: KindFatal, Data: detail})
	t.done = true
	t.fatal = true
}

func (t *Tokenizer) emit(ev Event) {
	if t.done {
		return
	}
	t.h.Handle(ev)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == ':' || c >= 0x80
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9' || c == '-' || c == '.'
}
