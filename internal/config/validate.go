// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/platewatch/internal/collector"
	"github.com/tomtom215/platewatch/internal/validation"
)

// Validate checks struct tags first, then the rules that span sections.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if _, err := collector.NewSchema(c.Extract.Envelope, c.Rules()); err != nil {
		return fmt.Errorf("fields: %w", err)
	}

	var plates int
	for _, f := range c.Fields {
		if collector.Role(f.Role) == collector.RolePlate {
			plates++
		}
	}
	if plates != 1 {
		return fmt.Errorf("fields: exactly one field must have role plate, found %d", plates)
	}

	if _, err := c.KeyRole(); err != nil {
		return err
	}

	if len(c.Plate.Presets) == 0 && len(c.Plate.Grammars) == 0 {
		return errors.New("plate: at least one preset or grammar is required")
	}
	if _, err := c.PlateValidator(); err != nil {
		return fmt.Errorf("plate: %w", err)
	}

	if c.Spool.Enabled && c.Spool.MaxAttempts == 0 {
		return errors.New("spool: max_attempts must be positive when the spool is enabled")
	}
	return nil
}

// KeyRole resolves dedup.key_field to the role of that field. The field
// must identify a device.
func (c *Config) KeyRole() (collector.Role, error) {
	for _, f := range c.Fields {
		if f.Name != c.Dedup.KeyField {
			continue
		}
		switch role := collector.Role(f.Role); role {
		case collector.RoleSerial, collector.RoleMAC, collector.RoleDeviceName:
			return role, nil
		default:
			return "", fmt.Errorf("dedup: key_field %q has role %q, want serial, mac or device_name", f.Name, f.Role)
		}
	}
	return "", fmt.Errorf("dedup: key_field %q is not a configured field", c.Dedup.KeyField)
}
