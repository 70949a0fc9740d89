// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultEnvelope is the tag bounding one detection in camera payloads.
const DefaultEnvelope = "config"

// Transform is a post-processing step applied to a selected value.
type Transform string

// Supported transforms.
const (
	TransformTrim  Transform = "trim"
	TransformUpper Transform = "upper"
	TransformInt   Transform = "int"
)

// Role binds a captured field to a slot of the Candidate.
type Role string

// Candidate roles. RoleNone keeps the value only in Candidate.Fields.
const (
	RoleNone       Role = ""
	RoleMAC        Role = "mac"
	RoleSerial     Role = "serial"
	RoleDeviceName Role = "device_name"
	RolePlate      Role = "plate"
	RoleTargetType Role = "target_type"
	RoleImage      Role = "image"
)

// Rule selects the Nth occurrence of a field inside the envelope.
type Rule struct {
	// Field is the tag name to capture.
	Field string
	// Ordinal is the 1-indexed occurrence whose value is kept.
	Ordinal int
	// Transforms run in order on the selected value.
	Transforms []Transform
	// Role maps the value onto the Candidate.
	Role Role
}

// DefaultRules returns the field set emitted by the supported camera firmware.
// The firmware writes a leading plateNumber that does not carry the
// recognized plate, so the plate is taken from the second occurrence.
func DefaultRules() []Rule {
	return []Rule{
		{Field: "mac", Ordinal: 1, Transforms: []Transform{TransformTrim}, Role: RoleMAC},
		{Field: "sn", Ordinal: 1, Transforms: []Transform{TransformTrim}, Role: RoleSerial},
		{Field: "deviceName", Ordinal: 1, Transforms: []Transform{TransformTrim}, Role: RoleDeviceName},
		{Field: "plateNumber", Ordinal: 2, Transforms: []Transform{TransformTrim, TransformUpper}, Role: RolePlate},
		{Field: "targetType", Ordinal: 1, Transforms: []Transform{TransformTrim}, Role: RoleTargetType},
		{Field: "targetBase64Data", Ordinal: 1, Role: RoleImage},
	}
}

// Errors returned by NewSchema.
var (
	ErrNoEnvelope     = errors.New("collector: envelope tag is required")
	ErrInvalidRule    = errors.New("collector: invalid field rule")
	ErrDuplicateField = errors.New("collector: duplicate field rule")
	ErrDuplicateRole  = errors.New("collector: role bound to more than one field")
)

// errNoInteger marks a value that the int transform could not parse.
var errNoInteger = errors.New("no leading integer")

func validateRule(r Rule, envelope string) error {
	if r.Field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidRule)
	}
	if r.Field == envelope {
		return fmt.Errorf("%w: field %q is the envelope tag", ErrInvalidRule, r.Field)
	}
	if r.Ordinal < 1 {
		return fmt.Errorf("%w: field %q ordinal %d must be >= 1", ErrInvalidRule, r.Field, r.Ordinal)
	}
	for _, t := range r.Transforms {
		switch t {
		case TransformTrim, TransformUpper, TransformInt:
		default:
			return fmt.Errorf("%w: field %q unknown transform %q", ErrInvalidRule, r.Field, t)
		}
	}
	switch r.Role {
	case RoleNone, RoleMAC, RoleSerial, RoleDeviceName, RolePlate, RoleTargetType, RoleImage:
	default:
		return fmt.Errorf("%w: field %q unknown role %q", ErrInvalidRule, r.Field, r.Role)
	}
	return nil
}

// apply runs the rule's transforms. A value the int transform cannot
// parse yields an error and the field stays absent.
func (r Rule) apply(v string) (string, error) {
	for _, t := range r.Transforms {
		switch t {
		case TransformTrim:
			v = strings.TrimSpace(v)
		case TransformUpper:
			v = strings.ToUpper(v)
		case TransformInt:
			n, err := leadingInt(v)
			if err != nil {
				return "", err
			}
			v = strconv.FormatInt(n, 10)
		}
	}
	return v, nil
}

// leadingInt parses an optional sign and the leading decimal digits of s,
// ignoring anything after them.
func leadingInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, errNoInteger
	}
	return strconv.ParseInt(s[:end], 10, 64)
}
