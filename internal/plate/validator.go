// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

// Package plate classifies recognized plate strings against a set of
// fixed-length alphanumeric grammars.
package plate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoGrammars is returned when a validator is built without grammars.
var ErrNoGrammars = errors.New("plate: at least one grammar is required")

// Preset names accepted by Preset.
const (
	PresetDefault     = "default"
	PresetNLSidecodes = "nl-sidecodes"
)

var defaultSpecs = []Spec{
	{Name: "ten-mixed", Kind: KindComposition, Length: 10, Letters: 4, Digits: 6},
	{Name: "state-series", Kind: KindPositional, Pattern: "LLDDLLDDDD"},
	{Name: "state-series-short", Kind: KindPositional, Pattern: "LLDDLDDDD"},
}

// Dutch sidecodes, named by year of introduction.
var nlSidecodeSpecs = []Spec{
	{Name: "nl-1951", Kind: KindPositional, Pattern: "LLDDDD"},
	{Name: "nl-1965", Kind: KindPositional, Pattern: "DDDDLL"},
	{Name: "nl-1973", Kind: KindPositional, Pattern: "DDLLDD"},
	{Name: "nl-1978", Kind: KindPositional, Pattern: "LLDDLL"},
	{Name: "nl-1991", Kind: KindPositional, Pattern: "LLLLDD"},
	{Name: "nl-1999", Kind: KindPositional, Pattern: "DDLLLL"},
	{Name: "nl-2005", Kind: KindPositional, Pattern: "DDLLLD"},
	{Name: "nl-2006", Kind: KindPositional, Pattern: "LLDDDL"},
	{Name: "nl-2008", Kind: KindPositional, Pattern: "LDDDLL"},
	{Name: "nl-2009", Kind: KindPositional, Pattern: "DLLLDD"},
	{Name: "nl-2015", Kind: KindPositional, Pattern: "LLLDDL"},
}

// Preset returns the grammar specs of a named preset.
func Preset(name string) ([]Spec, error) {
	switch name {
	case PresetDefault:
		return append([]Spec(nil), defaultSpecs...), nil
	case PresetNLSidecodes:
		return append([]Spec(nil), nlSidecodeSpecs...), nil
	default:
		return nil, fmt.Errorf("plate: unknown preset %q", name)
	}
}

// Result is the classification of one candidate.
type Result struct {
	Valid bool
	// Plate is the normalized candidate.
	Plate string
	// Grammar names the first matching grammar. Empty when invalid.
	Grammar string
}

// Validator checks candidates against an ordered grammar list. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	grammars  []Grammar
	normalize bool
}

// Options configures a Validator.
type Options struct {
	// Normalize upper-cases candidates and strips spaces and dashes
	// before matching.
	Normalize bool
}

// NewValidator creates a validator over grammars, tried in order.
func NewValidator(grammars []Grammar, opts Options) (*Validator, error) {
	if len(grammars) == 0 {
		return nil, ErrNoGrammars
	}
	return &Validator{
		grammars:  append([]Grammar(nil), grammars...),
		normalize: opts.Normalize,
	}, nil
}

// NewValidatorFromSpecs compiles specs and creates a validator.
func NewValidatorFromSpecs(specs []Spec, opts Options) (*Validator, error) {
	grammars := make([]Grammar, 0, len(specs))
	for _, s := range specs {
		g, err := Compile(s)
		if err != nil {
			return nil, err
		}
		grammars = append(grammars, g)
	}
	return NewValidator(grammars, opts)
}

// Default returns a normalizing validator over the default preset.
func Default() *Validator {
	v, err := NewValidatorFromSpecs(defaultSpecs, Options{Normalize: true})
	if err != nil {
		panic(err)
	}
	return v
}

// Grammars returns the grammar names in match order.
func (v *Validator) Grammars() []string {
	names := make([]string, len(v.grammars))
	for i, g := range v.grammars {
		names[i] = g.name
	}
	return names
}

// Normalize applies the validator's normalization to s.
func (v *Validator) Normalize(s string) string {
	if !v.normalize {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '-' || r == '\t':
			return -1
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		default:
			return r
		}
	}, s)
}

// Validate classifies candidate. Empty input is invalid.
func (v *Validator) Validate(candidate string) Result {
	p := v.Normalize(candidate)
	res := Result{Plate: p}
	if p == "" {
		return res
	}
	for _, g := range v.grammars {
		if g.Match(p) {
			res.Valid = true
			res.Grammar = g.name
			return res
		}
	}
	return res
}

// Valid reports whether candidate matches any grammar.
func (v *Validator) Valid(candidate string) bool {
	return v.Validate(candidate).Valid
}
