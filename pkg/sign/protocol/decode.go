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
	"bytes"
	"fmt"
)

// Packet is a decoded transmission.
type Packet struct {
	Address  string
	Commands []RawCommand
	TypeCode byte
}

// RawCommand is a command code and its payload as found on the wire.
type RawCommand struct {
	Data []byte
	Code byte
}

// Decode joins frames and parses the packet they carry.
func Decode(frames []Frame) (*Packet, error) {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f)
	}
	return DecodePacket(buf.Bytes())
}

func DecodePacket(pkt []byte) (*Packet, error) {
	i := 0
	for i < len(pkt) && pkt[i] == NUL {
		i++
	}
	if i == 0 {
		return nil, fmt.Errorf("%w: missing NUL preamble", ErrMalformedPacket)
	}

	// SOH, type code, 2 byte address
	if len(pkt) < i+4 || pkt[i] != SOH {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedPacket)
	}
	p := &Packet{
		TypeCode: pkt[i+1],
		Address:  string(pkt[i+2 : i+4]),
	}
	i += 4

	if len(pkt) == 0 || pkt[len(pkt)-1] != EOT {
		return nil, fmt.Errorf("%w: missing EOT", ErrMalformedPacket)
	}
	body := pkt[i : len(pkt)-1]

	if len(body) == 0 || body[0] != STX {
		return nil, fmt.Errorf("%w: missing STX", ErrMalformedPacket)
	}

	for _, part := range bytes.Split(body[1:], []byte{STX}) {
		if len(part) == 0 {
			return nil, fmt.Errorf("%w: empty command", ErrMalformedPacket)
		}
		p.Commands = append(p.Commands, RawCommand{
			Code: part[0],
			Data: append([]byte(nil), part[1:]...),
		})
	}

	return p, nil
}

// WriteText interprets the command as a text write.
func (c RawCommand) WriteText() (WriteText, bool) {
	if c.Code != CodeWriteText || len(c.Data) == 0 {
		return WriteText{}, false
	}

	w := NewWriteText(c.Data[0], "")
	rest := c.Data[1:]
	if len(rest) > 0 && rest[0] == ESC {
		if len(rest) < 3 {
			return WriteText{}, false
		}
		w.Position = Position(rest[1])
		if rest[2] == specialModePrefix {
			if len(rest) < 4 {
				return WriteText{}, false
			}
			w.Mode = Mode(uint16(rest[2])<<8 | uint16(rest[3]))
			rest = rest[4:]
		} else {
			w.Mode = Mode(rest[2])
			rest = rest[3:]
		}
	}
	w.Text = string(rest)
	return w, true
}

// Describe renders the packet for logs, showing text writes as readable
// text and everything else as hex.
func (p *Packet) Describe() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "type=%c addr=%s", p.TypeCode, p.Address)
	for _, c := range p.Commands {
		if w, ok := c.WriteText(); ok {
			fmt.Fprintf(&b, " write[%c]=%q", w.Label, w.Text)
			continue
		}
		fmt.Fprintf(&b, " cmd[%c]=% X", c.Code, c.Data)
	}
	return b.String()
}
