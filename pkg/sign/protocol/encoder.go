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
	"unicode/utf8"
)

// Frame is the unit of bytes handed to one transport send.
type Frame []byte

func (f Frame) String() string {
	return fmt.Sprintf("% X", []byte(f))
}

// Options configure packet addressing and limits.
type Options struct {
	Address       string
	FrameSize     int
	MaxTextLength int
	TypeCode      byte
	Transliterate bool
}

func DefaultOptions() Options {
	return Options{
		TypeCode:      TypeAllSigns,
		Address:       BroadcastAddr,
		FrameSize:     DefaultFrameSize,
		MaxTextLength: DefaultMaxTextLength,
		Transliterate: true,
	}
}

// Encoder turns commands into frames. It holds no mutable state and is
// safe for concurrent use.
type Encoder struct {
	opts Options
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.TypeCode == 0 {
		opts.TypeCode = TypeAllSigns
	}
	if opts.Address == "" {
		opts.Address = BroadcastAddr
	}
	if len(opts.Address) != 2 {
		return nil, fmt.Errorf("sign address must be 2 characters, got %q", opts.Address)
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = DefaultFrameSize
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	return &Encoder{opts: opts}, nil
}

func (e *Encoder) Options() Options {
	return e.opts
}

// PrepareText transliterates (when enabled) and validates text so it can
// be sent verbatim. The returned string is what the sign will show.
func (e *Encoder) PrepareText(text string) (string, error) {
	if e.opts.Transliterate {
		t, err := Transliterate(text)
		if err != nil {
			return "", err
		}
		text = t
	}

	if n := utf8.RuneCountInString(text); n > e.opts.MaxTextLength {
		return "", &EncodingError{Err: ErrTextTooLong, Length: n, Max: e.opts.MaxTextLength}
	}

	for i, r := range text {
		if r < 0x20 || r > 0x7E {
			return "", &EncodingError{Err: ErrUnsupportedChar, Offset: i, Rune: r}
		}
	}

	return text, nil
}

func (e *Encoder) prepare(cmd Command) (Command, error) {
	switch c := cmd.(type) {
	case WriteText:
		if !ValidLabel(c.Label) {
			return nil, &EncodingError{Err: ErrInvalidLabel, Label: c.Label}
		}
		text, err := e.PrepareText(c.Text)
		if err != nil {
			return nil, err
		}
		c.Text = text
		return c, nil
	case ReadText:
		if !ValidLabel(c.Label) {
			return nil, &EncodingError{Err: ErrInvalidLabel, Label: c.Label}
		}
		return c, nil
	case nil:
		return nil, errors.New("nil command")
	default:
		return cmd, nil
	}
}

// Packet builds the complete unsplit packet for one or more commands.
func (e *Encoder) Packet(cmds ...Command) ([]byte, error) {
	if len(cmds) == 0 {
		return nil, errors.New("packet needs at least one command")
	}

	pkt := make([]byte, 0, 16)
	for range headerNULCount {
		pkt = append(pkt, NUL)
	}
	pkt = append(pkt, SOH, e.opts.TypeCode)
	pkt = append(pkt, e.opts.Address...)

	for _, cmd := range cmds {
		prepared, err := e.prepare(cmd)
		if err != nil {
			return nil, err
		}
		pkt = append(pkt, STX, prepared.Code())
		pkt = append(pkt, prepared.Data()...)
	}

	return append(pkt, EOT), nil
}

// Encode builds the packet for cmds and splits it into frames no larger
// than the configured frame size.
func (e *Encoder) Encode(cmds ...Command) ([]Frame, error) {
	pkt, err := e.Packet(cmds...)
	if err != nil {
		return nil, err
	}
	return Split(pkt, e.opts.FrameSize), nil
}

// Split cuts pkt into consecutive frames of at most size bytes, keeping
// byte order. The first frame carries the header and the last the EOT.
func Split(pkt []byte, size int) []Frame {
	if size <= 0 || len(pkt) <= size {
		return []Frame{Frame(append([]byte(nil), pkt...))}
	}

	frames := make([]Frame, 0, (len(pkt)+size-1)/size)
	for offset := 0; offset < len(pkt); offset += size {
		end := min(offset+size, len(pkt))
		frames = append(frames, Frame(append([]byte(nil), pkt[offset:end]...)))
	}
	return frames
}
