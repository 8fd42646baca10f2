// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"fmt"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation the sign font lacks but has a close ASCII stand-in for
var asciiPunctuation = map[rune]string{
	'‘': "'", // left single quote
	'’': "'", // right single quote
	'“': `"`,
	'”': `"`,
	'–': "-", // en dash
	'—': "-", // em dash
	'…': "...",
	' ': " ", // no-break space
	'×': "x",
	'ß': "ss",
	'Æ': "AE",
	'æ': "ae",
	'Œ': "OE",
	'œ': "oe",
	'Ø': "O",
	'ø': "o",
	'Ł': "L",
	'ł': "l",
}

// Transliterate strips diacritics (é becomes e) and swaps common typographic
// punctuation for ASCII. Characters with no stand-in are left alone for
// validation to reject.
func Transliterate(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return "", fmt.Errorf("failed to transliterate text: %w", err)
	}

	needsMap := false
	for _, r := range out {
		if _, ok := asciiPunctuation[r]; ok {
			needsMap = true
			break
		}
	}
	if !needsMap {
		return out, nil
	}

	buf := make([]byte, 0, len(out))
	for _, r := range out {
		if repl, ok := asciiPunctuation[r]; ok {
			buf = append(buf, repl...)
			continue
		}
		buf = append(buf, string(r)...)
	}
	return string(buf), nil
}
