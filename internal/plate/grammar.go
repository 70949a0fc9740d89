// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package plate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind selects how a Grammar matches.
type Kind string

// Grammar kinds.
const (
	// KindComposition matches exact letter and digit counts in any order.
	KindComposition Kind = "composition"
	// KindPositional matches a per-position class pattern such as LLDDLLDDDD.
	KindPositional Kind = "positional"
	// KindRegexp matches a regular expression anchored to the whole plate.
	KindRegexp Kind = "regexp"
)

// ErrInvalidGrammar is returned for grammar definitions that can never match.
var ErrInvalidGrammar = errors.New("plate: invalid grammar")

// Spec is the declarative form of a grammar, as read from configuration.
type Spec struct {
	Name    string
	Kind    Kind
	Length  int
	Letters int
	Digits  int
	// Pattern is the positional pattern (L letter, D digit, X either) or
	// the regular expression, depending on Kind.
	Pattern string
}

// Grammar is a compiled plate format.
type Grammar struct {
	name    string
	kind    Kind
	length  int
	letters int
	digits  int
	pattern string
	re      *regexp.Regexp
}

// Name returns the grammar name.
func (g Grammar) Name() string { return g.name }

// Kind returns the grammar kind.
func (g Grammar) Kind() Kind { return g.kind }

// Compile validates a Spec and returns the grammar.
func Compile(s Spec) (Grammar, error) {
	g := Grammar{name: s.Name, kind: s.Kind}
	if s.Name == "" {
		return g, fmt.Errorf("%w: name is required", ErrInvalidGrammar)
	}

	switch s.Kind {
	case KindComposition:
		if s.Length <= 0 || s.Letters < 0 || s.Digits < 0 || s.Letters+s.Digits != s.Length {
			return g, fmt.Errorf("%w: %s: letters (%d) + digits (%d) must equal length (%d)",
				ErrInvalidGrammar, s.Name, s.Letters, s.Digits, s.Length)
		}
		g.length, g.letters, g.digits = s.Length, s.Letters, s.Digits

	case KindPositional:
		p := strings.ToUpper(s.Pattern)
		if p == "" || strings.Trim(p, "LDX") != "" {
			return g, fmt.Errorf("%w: %s: pattern %q must use only L, D and X", ErrInvalidGrammar, s.Name, s.Pattern)
		}
		g.pattern = p
		g.length = len(p)

	case KindRegexp:
		expr := s.Pattern
		if expr == "" {
			return g, fmt.Errorf("%w: %s: empty expression", ErrInvalidGrammar, s.Name)
		}
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return g, fmt.Errorf("%w: %s: %w", ErrInvalidGrammar, s.Name, err)
		}
		g.pattern = expr
		g.re = re

	default:
		return g, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidGrammar, s.Name, s.Kind)
	}

	return g, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// package-level grammar tables.
func MustCompile(s Spec) Grammar {
	g, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether candidate matches the grammar. Only A-Z and 0-9
// count as letters and digits.
func (g Grammar) Match(candidate string) bool {
	switch g.kind {
	case KindComposition:
		if len(candidate) != g.length {
			return false
		}
		letters, digits := 0, 0
		for i := 0; i < len(candidate); i++ {
			switch c := candidate[i]; {
			case isLetter(c):
				letters++
			case isDigit(c):
				digits++
			default:
				return false
			}
		}
		return letters == g.letters && digits == g.digits

	case KindPositional:
		if len(candidate) != g.length {
			return false
		}
		for i := 0; i < len(candidate); i++ {
			c := candidate[i]
			switch g.pattern[i] {
			case 'L':
				if !isLetter(c) {
					return false
				}
			case 'D':
				if !isDigit(c) {
					return false
				}
			default:
				if !isLetter(c) && !isDigit(c) {
					return false
				}
			}
		}
		return true

	case KindRegexp:
		return g.re.MatchString(candidate)
	}
	return false
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
