// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package collector

import (
	"errors"
	"testing"

	"github.com/tomtom215/platewatch/internal/markup"
)

// run tokenizes input through a fresh collector and returns the candidates.
func run(t *testing.T, schema *Schema, input string) ([]Candidate, *Collector) {
	t.Helper()
	var out []Candidate
	c := schema.NewCollector(func(cand Candidate) { out = append(out, cand) })
	tok := markup.NewTokenizer(c, markup.DefaultOptions())
	tok.Feed([]byte(input))
	_ = tok.End()
	c.End()
	return out, c
}

func mustSchema(t *testing.T, envelope string, rules []Rule) *Schema {
	t.Helper()
	s, err := NewSchema(envelope, rules)
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	return s
}

func TestCollector_NthOccurrence(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{
		{Field: "plateNumber", Ordinal: 2, Role: RolePlate},
	})

	got, _ := run(t, schema, `<config>
		<plateNumber>A</plateNumber>
		<plateNumber>B</plateNumber>
		<plateNumber>C</plateNumber>
	</config>`)

	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Plate != "B" {
		t.Errorf("Plate = %q, want %q", got[0].Plate, "B")
	}
}

func TestCollector_OrdinalStableUnderInterleaving(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{
		{Field: "plateNumber", Ordinal: 2, Role: RolePlate},
		{Field: "sn", Ordinal: 1, Role: RoleSerial},
		{Field: "mac", Ordinal: 3, Role: RoleMAC},
	})

	got, _ := run(t, schema, `<config>
		<mac>m1</mac><plateNumber>p1</plateNumber><sn>s1</sn>
		<mac>m2</mac><sn>s2</sn><plateNumber>p2</plateNumber>
		<other>ignored</other><mac>m3</mac><plateNumber>p3</plateNumber>
	</config>`)

	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.Plate != "p2" || c.Serial != "s1" || c.MAC != "m3" {
		t.Errorf("got plate=%q serial=%q mac=%q", c.Plate, c.Serial, c.MAC)
	}
	if _, ok := c.Fields["other"]; ok {
		t.Error("unconfigured field should not be captured")
	}
}

func TestCollector_DefaultRules(t *testing.T) {
	schema := mustSchema(t, DefaultEnvelope, DefaultRules())

	got, _ := run(t, schema, `<?xml version="1.0"?>
<config version=2.0>
	<mac>00:1A:2B:3C:4D:5E</mac>
	<sn>SN-0042</sn>
	<deviceName>Gate North</deviceName>
	<plateNumber>unknown</plateNumber>
	<plateNumber> ab12cd3456 </plateNumber>
	<targetType>car</targetType>
	<targetBase64Data>aGVsbG8=</targetBase64Data>
	<targetBase64Data>d29ybGQ=</targetBase64Data>
</config>`)

	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	checks := map[string][2]string{
		"mac":        {c.MAC, "00:1A:2B:3C:4D:5E"},
		"serial":     {c.Serial, "SN-0042"},
		"deviceName": {c.DeviceName, "Gate North"},
		"plate":      {c.Plate, "AB12CD3456"},
		"targetType": {c.TargetType, "car"},
		"image":      {c.Image, "aGVsbG8="},
	}
	for name, v := range checks {
		if v[0] != v[1] {
			t.Errorf("%s = %q, want %q", name, v[0], v[1])
		}
	}
}

func TestCollector_TolerantRecovery(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{
		{Field: "sn", Ordinal: 1, Role: RoleSerial},
		{Field: "plateNumber", Ordinal: 1, Role: RolePlate},
	})

	tests := []struct {
		name  string
		input string
		plate string
		sn    string
	}{
		{
			name:  "extra close after field",
			input: `<config><sn>S1</sn></sn><plateNumber>AB12CD3456</plateNumber></config>`,
			plate: "AB12CD3456",
			sn:    "S1",
		},
		{
			name:  "stray close while field open",
			input: `<config><plateNumber>AB12</sn>CD3456</plateNumber><sn>S1</sn></config>`,
			plate: "AB12CD3456",
			sn:    "S1",
		},
		{
			name:  "unquoted attributes",
			input: `<config a=1><sn kind=x>S1</sn><plateNumber>AB12CD3456</plateNumber></config>`,
			plate: "AB12CD3456",
			sn:    "S1",
		},
		{
			name:  "stray close for envelope-external tag before scope",
			input: `</foo><config><sn>S1</sn></config></config>`,
			sn:    "S1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := run(t, schema, tt.input)
			if len(got) != 1 {
				t.Fatalf("expected 1 candidate, got %d", len(got))
			}
			if got[0].Plate != tt.plate || got[0].Serial != tt.sn {
				t.Errorf("got plate=%q sn=%q, want plate=%q sn=%q", got[0].Plate, got[0].Serial, tt.plate, tt.sn)
			}
		})
	}
}

func TestCollector_TextAndCDATAConcatenate(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{{Field: "plateNumber", Ordinal: 1, Role: RolePlate}})

	got, _ := run(t, schema, `<config><plateNumber>AB<![CDATA[12]]>CD<b>34</b>56</plateNumber></config>`)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Plate != "AB12CD3456" {
		t.Errorf("Plate = %q", got[0].Plate)
	}
}

func TestCollector_IncompleteScopeDiscarded(t *testing.T) {
	schema := mustSchema(t, "config", DefaultRules())

	got, c := run(t, schema, `<config><sn>S1</sn><plateNumber>x</plateNumber><plateNumber>AB12`)
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
	if c.Stats().Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", c.Stats().Discarded)
	}
	if c.State() != StateIdle {
		t.Errorf("State = %v, want idle", c.State())
	}
}

func TestCollector_FatalDiscardsScope(t *testing.T) {
	schema := mustSchema(t, "config", DefaultRules())

	got, _ := run(t, schema, `<config><sn>S1</sn><plateNum`)
	if len(got) != 0 {
		t.Fatalf("expected no candidates after fatal, got %d", len(got))
	}
}

func TestCollector_MultipleEnvelopes(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{{Field: "sn", Ordinal: 1, Role: RoleSerial}})

	got, c := run(t, schema, `<root><config><sn>A</sn></config><config><sn>B</sn></config></root>`)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Serial != "A" || got[1].Serial != "B" {
		t.Errorf("serials = %q, %q", got[0].Serial, got[1].Serial)
	}
	if st := c.Stats(); st.Opened != 2 || st.Emitted != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCollector_ReopenedEnvelopeResets(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{{Field: "sn", Ordinal: 1, Role: RoleSerial}})

	got, c := run(t, schema, `<config><sn>A</sn><config><sn>B</sn></config>`)
	if len(got) != 1 || got[0].Serial != "B" {
		t.Fatalf("got %+v", got)
	}
	if c.Stats().Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", c.Stats().Discarded)
	}
}

func TestCollector_MissingFieldsAbsent(t *testing.T) {
	schema := mustSchema(t, "config", DefaultRules())

	got, _ := run(t, schema, `<config><sn>S1</sn><plateNumber>only-one</plateNumber></config>`)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Plate != "" || got[0].MAC != "" {
		t.Errorf("expected absent plate and mac, got %+v", got[0])
	}
}

func TestCollector_StateTransitions(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{{Field: "sn", Ordinal: 1}})
	c := schema.NewCollector(func(Candidate) {})

	steps := []struct {
		ev   markup.Event
		want State
	}{
		{markup.Event{Kind: markup.KindOpen, Name: "sn"}, StateIdle},
		{markup.Event{Kind: markup.KindOpen, Name: "config"}, StateInScope},
		{markup.Event{Kind: markup.KindOpen, Name: "sn"}, StateFieldOpen},
		{markup.Event{Kind: markup.KindMalformed, Anomaly: markup.AnomalyUnmatchedClose}, StateFieldOpen},
		{markup.Event{Kind: markup.KindClose, Name: "other"}, StateFieldOpen},
		{markup.Event{Kind: markup.KindClose, Name: "sn"}, StateInScope},
		{markup.Event{Kind: markup.KindClose, Name: "sn"}, StateInScope},
		{markup.Event{Kind: markup.KindClose, Name: "config"}, StateIdle},
	}
	for i, s := range steps {
		c.Handle(s.ev)
		if c.State() != s.want {
			t.Fatalf("step %d: state = %v, want %v", i, c.State(), s.want)
		}
	}
}

func TestCollector_IntTransform(t *testing.T) {
	schema := mustSchema(t, "config", []Rule{
		{Field: "plateNumber", Ordinal: 1, Transforms: []Transform{TransformInt}, Role: RolePlate},
		{Field: "count", Ordinal: 1, Transforms: []Transform{TransformInt}},
	})

	got, _ := run(t, schema, `<config><plateNumber> 0042abc</plateNumber><count>none</count></config>`)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Plate != "42" {
		t.Errorf("Plate = %q, want 42", got[0].Plate)
	}
	if _, ok := got[0].Fields["count"]; ok {
		t.Error("unparseable int should leave the field absent")
	}
}

func TestNewSchema_Validation(t *testing.T) {
	tests := []struct {
		name     string
		envelope string
		rules    []Rule
		wantErr  error
	}{
		{"no envelope", "", nil, ErrNoEnvelope},
		{"zero ordinal", "config", []Rule{{Field: "sn", Ordinal: 0}}, ErrInvalidRule},
		{"empty field", "config", []Rule{{Field: "", Ordinal: 1}}, ErrInvalidRule},
		{"field is envelope", "config", []Rule{{Field: "config", Ordinal: 1}}, ErrInvalidRule},
		{"unknown transform", "config", []Rule{{Field: "sn", Ordinal: 1, Transforms: []Transform{"rot13"}}}, ErrInvalidRule},
		{"unknown role", "config", []Rule{{Field: "sn", Ordinal: 1, Role: "owner"}}, ErrInvalidRule},
		{"duplicate field", "config", []Rule{{Field: "sn", Ordinal: 1}, {Field: "sn", Ordinal: 2}}, ErrDuplicateField},
		{"duplicate role", "config", []Rule{
			{Field: "sn", Ordinal: 1, Role: RoleSerial},
			{Field: "serial", Ordinal: 1, Role: RoleSerial},
		}, ErrDuplicateRole},
		{"valid defaults", DefaultEnvelope, DefaultRules(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.envelope, tt.rules)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSchema() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
