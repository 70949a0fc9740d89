// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // snapshot decoder
	"image/png"
)

// Preprocess converts an encoded snapshot to a black and white PNG. Pixels
// whose luminance is at or above threshold become white, the rest black,
// which isolates the white overlay text from the scene.
func Preprocess(data []byte, threshold uint8) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			if g.Y >= threshold {
				dst.SetGray(x, y, color.Gray{Y: 0xff})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", format, err)
	}
	return buf.Bytes(), nil
}
