// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

//go:build !nats

package eventbus

import "github.com/ThreeDotsLabs/watermill/message"

// Dial returns ErrUnavailable without the nats build tag.
func Dial(Config) (message.Publisher, error) {
	return nil, ErrUnavailable
}
