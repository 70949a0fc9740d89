// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package markup

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// recorder renders events to compact strings for comparison.
type recorder struct {
	events []string
}

func (r *recorder) Handle(ev Event) {
	switch ev.Kind {
	case KindOpen:
		var attrs []string
		for _, a := range ev.Attrs {
			attrs = append(attrs, a.Name+"="+a.Value)
		}
		if len(attrs) > 0 {
			r.events = append(r.events, fmt.Sprintf("open:%s[%s]", ev.Name, strings.Join(attrs, ",")))
		} else {
			r.events = append(r.events, "open:"+ev.Name)
		}
	case KindClose:
		r.events = append(r.events, "close:"+ev.Name)
	case KindText:
		r.events = append(r.events, "text:"+ev.Data)
	case KindCDATA:
		r.events = append(r.events, "cdata:"+ev.Data)
	case KindMalformed:
		r.events = append(r.events, "malformed:"+string(ev.Anomaly))
	case KindFatal:
		r.events = append(r.events, "fatal")
	}
}

func tokenize(input string, opts Options) ([]string, error) {
	rec := &recorder{}
	tok := NewTokenizer(rec, opts)
	tok.Feed([]byte(input))
	err := tok.End()
	return rec.events, err
}

func tokenizeBytewise(input string, opts Options) ([]string, error) {
	rec := &recorder{}
	tok := NewTokenizer(rec, opts)
	for i := 0; i < len(input); i++ {
		tok.Feed([]byte{input[i]})
	}
	err := tok.End()
	return rec.events, err
}

func TestTokenizer_Events(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple element",
			input: "<config><sn>ABC123</sn></config>",
			want:  []string{"open:config", "open:sn", "text:ABC123", "close:sn", "close:config"},
		},
		{
			name:  "xml declaration and comment skipped",
			input: `<?xml version="1.0"?><!-- hello -- world --><a>x</a>`,
			want:  []string{"open:a", "text:x", "close:a"},
		},
		{
			name:  "doctype with internal subset skipped",
			input: `<!DOCTYPE a [<!ENTITY x "y">]><a/>`,
			want:  []string{"open:a", "close:a"},
		},
		{
			name:  "quoted attributes",
			input: `<a x="1" y='two words'>t</a>`,
			want:  []string{"open:a[x=1,y=two words]", "text:t", "close:a"},
		},
		{
			name:  "unquoted attribute",
			input: `<a x=1 y=2>t</a>`,
			want: []string{
				"malformed:unquoted-attribute", "malformed:unquoted-attribute",
				"open:a[x=1,y=2]", "text:t", "close:a",
			},
		},
		{
			name:  "unquoted attribute before self close",
			input: `<a x=1/>`,
			want:  []string{"malformed:unquoted-attribute", "open:a[x=1]", "close:a"},
		},
		{
			name:  "unquoted attribute containing slash",
			input: `<a href=/x/y>t</a>`,
			want:  []string{"malformed:unquoted-attribute", "open:a[href=/x/y]", "text:t", "close:a"},
		},
		{
			name:  "attribute without value",
			input: `<a checked>t</a>`,
			want:  []string{"malformed:attribute-without-value", "open:a[checked=]", "text:t", "close:a"},
		},
		{
			name:  "duplicate attribute keeps first",
			input: `<a x="1" x="2"/>`,
			want:  []string{"malformed:duplicate-attribute", "open:a[x=1]", "close:a"},
		},
		{
			name:  "self closing",
			input: `<a><b/></a>`,
			want:  []string{"open:a", "open:b", "close:b", "close:a"},
		},
		{
			name:  "duplicate closing tag",
			input: `<config><sn>X</sn></sn></config>`,
			want: []string{
				"open:config", "open:sn", "text:X", "close:sn",
				"malformed:unmatched-close", "close:sn", "close:config",
			},
		},
		{
			name:  "closing tag for deeper element closes intermediates",
			input: `<config><plateNumber>AB</config>`,
			want: []string{
				"open:config", "open:plateNumber", "text:AB",
				"malformed:unclosed-before-close", "close:plateNumber", "close:config",
			},
		},
		{
			name:  "cdata",
			input: `<a><![CDATA[<raw> & ]]]></a>`,
			want:  []string{"open:a", "cdata:<raw> & ]", "close:a"},
		},
		{
			name:  "text and cdata interleaved",
			input: `<a>one<![CDATA[two]]>three</a>`,
			want:  []string{"open:a", "text:one", "cdata:two", "text:three", "close:a"},
		},
		{
			name:  "entities decoded",
			input: `<a t="&quot;q&quot;">&lt;x&gt; &amp; &#65;&#x42;</a>`,
			want:  []string{`open:a[t="q"]`, "text:<x> & AB", "close:a"},
		},
		{
			name:  "unknown entity kept verbatim",
			input: `<a>&bogus; ok</a>`,
			want:  []string{"open:a", "malformed:bad-entity", "text:&bogus; ok", "close:a"},
		},
		{
			name:  "stray less than",
			input: `<a>1 < 2</a>`,
			want:  []string{"open:a", "malformed:stray-lt", "text:1 < 2", "close:a"},
		},
		{
			name:  "whitespace only text trimmed",
			input: "<a>\n  <b> x </b>\n</a>",
			want:  []string{"open:a", "open:b", "text:x", "close:b", "close:a"},
		},
		{
			name:  "unclosed elements at end",
			input: `<a><b>x`,
			want:  []string{"open:a", "open:b", "text:x", "malformed:unclosed-at-end", "malformed:unclosed-at-end"},
		},
		{
			name:  "empty close tag",
			input: `<a></></a>`,
			want:  []string{"open:a", "malformed:unmatched-close", "close:a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokenize(tt.input, DefaultOptions())
			if err != nil {
				t.Fatalf("End() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events mismatch\n got: %q\nwant: %q", got, tt.want)
			}
		})
	}
}

func TestTokenizer_ChunkBoundaryIndependence(t *testing.T) {
	inputs := []string{
		`<?xml version="1.0" encoding="UTF-8"?><config version=2.0 xmlns="urn:x"><mac>00:11:22</mac>` +
			`<plateNumber>NONE</plateNumber><plateNumber><![CDATA[AB12CD3456]]></plateNumber></plateNumber>` +
			`<!-- trailer --><targetBase64Data>aGVsbG8=</targetBase64Data></config>`,
		`<a x='1' y=2 z><b>&amp;&#x41;</b></c></a>`,
	}

	for _, in := range inputs {
		whole, errWhole := tokenize(in, DefaultOptions())
		bytewise, errBytes := tokenizeBytewise(in, DefaultOptions())
		if !errors.Is(errWhole, errBytes) {
			t.Fatalf("error mismatch: %v vs %v", errWhole, errBytes)
		}
		if !reflect.DeepEqual(whole, bytewise) {
			t.Errorf("chunking changed events\nwhole:    %q\nbytewise: %q", whole, bytewise)
		}
	}
}

func TestTokenizer_FatalAtEnd(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"mid tag name", "<config><plateNum"},
		{"mid closing tag", "<config></conf"},
		{"mid attribute", `<config a="unterminated`},
		{"mid comment", "<a><!-- never closed"},
		{"mid cdata", "<a><![CDATA[abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokenize(tt.input, DefaultOptions())
			if !errors.Is(err, ErrFatal) {
				t.Fatalf("End() error = %v, want ErrFatal", err)
			}
			if len(got) == 0 || got[len(got)-1] != "fatal" {
				t.Fatalf("last event should be fatal, got %q", got)
			}
			fatals := 0
			for _, ev := range got {
				if ev == "fatal" {
					fatals++
				}
			}
			if fatals != 1 {
				t.Errorf("fatal emitted %d times, want 1", fatals)
			}
		})
	}
}

func TestTokenizer_TrailingLessThan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "after closed envelope",
			input: "<config><sn>1</sn></config><",
			want:  []string{"open:config", "open:sn", "text:1", "close:sn", "close:config", "malformed:stray-lt", "text:<"},
		},
		{
			name:  "inside open element",
			input: "<a>x<",
			want:  []string{"open:a", "malformed:stray-lt", "text:x<", "malformed:unclosed-at-end"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, run := range []func(string, Options) ([]string, error){tokenize, tokenizeBytewise} {
				got, err := run(tt.input, DefaultOptions())
				if err != nil {
					t.Fatalf("End() error = %v, want nil", err)
				}
				if !reflect.DeepEqual(got, tt.want) {
					t.Errorf("events = %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestTokenizer_NoEventsAfterFatal(t *testing.T) {
	rec := &recorder{}
	tok := NewTokenizer(rec, Options{TrimText: true, MaxNameLen: 4})

	tok.Feed([]byte("<abcdefgh>"))
	if !tok.Failed() {
		t.Fatal("expected tokenizer to fail on long name")
	}
	n := len(rec.events)

	tok.Feed([]byte("<a>more</a>"))
	if err := tok.End(); !errors.Is(err, ErrFatal) {
		t.Errorf("End() = %v, want ErrFatal", err)
	}
	if err := tok.End(); !errors.Is(err, ErrFatal) {
		t.Errorf("second End() = %v, want ErrFatal", err)
	}
	if len(rec.events) != n {
		t.Errorf("events emitted after fatal: %q", rec.events[n:])
	}
}

func TestTokenizer_NoTrim(t *testing.T) {
	got, err := tokenize("<a> x </a>", Options{TrimText: false})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"open:a", "text: x ", "close:a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTokenizer_Depth(t *testing.T) {
	tok := NewTokenizer(HandlerFunc(func(Event) {}), DefaultOptions())
	tok.Feed([]byte("<a><b>"))
	if tok.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", tok.Depth())
	}
	tok.Feed([]byte("</b></a>"))
	if tok.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", tok.Depth())
	}
}

func TestEvent_Attr(t *testing.T) {
	ev := Event{Kind: KindOpen, Name: "a", Attrs: []Attr{{Name: "x", Value: "1"}}}
	if v, ok := ev.Attr("x"); !ok || v != "1" {
		t.Errorf("Attr(x) = %q, %v", v, ok)
	}
	if _, ok := ev.Attr("y"); ok {
		t.Error("Attr(y) should be absent")
	}
}

func TestKind_String(t *testing.T) {
	if KindOpen.String() != "open" || KindFatal.String() != "fatal" {
		t.Error("unexpected kind names")
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unknown kind = %q", Kind(99).String())
	}
}
