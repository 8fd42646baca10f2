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
	"errors"
	"fmt"
)

var (
	ErrUnsupportedChar = errors.New("unsupported character")
	ErrInvalidLabel    = errors.New("invalid label")
	ErrTextTooLong     = errors.New("text too long")
	ErrMalformedPacket = errors.New("malformed packet")
)

// EncodingError reports why a command could not be turned into frames.
type EncodingError struct {
	Err    error
	Offset int
	Rune   rune
	Length int
	Max    int
	Label  byte
}

func (e *EncodingError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnsupportedChar):
		return fmt.Sprintf("%v %q (U+%04X) at offset %d", e.Err, e.Rune, e.Rune, e.Offset)
	case errors.Is(e.Err, ErrInvalidLabel):
		return fmt.Sprintf("%v %q", e.Err, e.Label)
	case errors.Is(e.Err, ErrTextTooLong):
		return fmt.Sprintf("%v: %d characters, limit is %d", e.Err, e.Length, e.Max)
	default:
		return e.Err.Error()
	}
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
