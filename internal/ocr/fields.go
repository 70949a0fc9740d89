// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ocr

import (
	"regexp"
	"strings"
)

// On-screen display labels burned into camera snapshots.
const (
	FieldCameraNo    = "Camera No"
	FieldDeviceNo    = "Device No"
	FieldCaptureTime = "Capture Time"
	FieldCarPlate    = "Car Plate"
)

var fieldPattern = regexp.MustCompile(`(Camera No|Device No|Capture Time|Car Plate)\s*:\s*([^\n]*)`)

// ExtractFields returns the labelled values found in OCR text. A label seen
// more than once keeps its last value.
func ExtractFields(text string) map[string]string {
	out := make(map[string]string)
	for _, m := range fieldPattern.FindAllStringSubmatch(text, -1) {
		out[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	}
	return out
}

// truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
