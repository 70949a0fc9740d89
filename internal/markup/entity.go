// Platewatch - Camera Plate Detection Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/platewatch

package markup

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxEntityLen bounds the body of an entity reference between '&' and ';'.
const maxEntityLen = 10

var namedEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"quot": `"`,
	"apos": "'",
}

// decodeEntities replaces the predefined entities and numeric character
// references in s. Unknown or unterminated references are kept verbatim
// and reported through bad.
func decodeEntities(s string, bad func(ref string)) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != '&' {
			b.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(s[i+1:min(len(s), i+2+maxEntityLen)], ';')
		if end < 0 {
			bad(s[i:min(len(s), i+1+maxEntityLen)])
			b.WriteByte(c)
			i++
			continue
		}

		ref := s[i+1 : i+1+end]
		if r, ok := resolveEntity(ref); ok {
			b.WriteString(r)
		} else {
			bad("&" + ref + ";")
			b.WriteString(s[i : i+2+end])
		}
		i += end + 2
	}

	return b.String()
}

func resolveEntity(ref string) (string, bool) {
	if v, ok := namedEntities[ref]; ok {
		return v, true
	}
	if len(ref) < 2 || ref[0] != '#' {
		return "", false
	}

	var (
		n   uint64
		err error
	)
	if ref[1] == 'x' || ref[1] == 'X' {
		n, err = strconv.ParseUint(ref[2:], 16, 32)
	} else {
		n, err = strconv.ParseUint(ref[1:], 10, 32)
	}
	if err != nil || n == 0 || !utf8.ValidRune(rune(n)) {
		return "", false
	}
	return string(rune(n)), true
}
