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
	"time"
)

// Command is one command carried inside a packet.
type Command interface {
	Code() byte
	// Data is the payload after the command code.
	Data() []byte
}

// WriteText stores Text in the sign file Label. Position and Mode are only
// sent when they differ from the defaults (middle line, automode).
type WriteText struct {
	Text     string
	Position Position
	Mode     Mode
	Label    byte
}

func NewWriteText(label byte, text string) WriteText {
	return WriteText{
		Label:    label,
		Text:     text,
		Position: PositionMiddleLine,
		Mode:     ModeAuto,
	}
}

func (WriteText) Code() byte { return CodeWriteText }

// effective fills in the defaults for a zero Position or Mode.
func (w WriteText) effective() (Position, Mode) {
	pos, mode := w.Position, w.Mode
	if pos == 0 {
		pos = PositionMiddleLine
	}
	if mode == 0 {
		mode = ModeAuto
	}
	return pos, mode
}

func (w WriteText) Data() []byte {
	data := make([]byte, 0, len(w.Text)+5)
	data = append(data, w.Label)
	if pos, mode := w.effective(); pos != PositionMiddleLine || mode != ModeAuto {
		data = append(data, ESC, byte(pos))
		data = append(data, mode.bytes()...)
	}
	return append(data, w.Text...)
}

// ReadText asks the sign to send back the contents of a text file.
type ReadText struct {
	Label byte
}

func (ReadText) Code() byte { return CodeReadText }

func (r ReadText) Data() []byte { return []byte{r.Label} }

// Special is a write special function command.
type Special struct {
	Name    string
	payload []byte
}

func (Special) Code() byte { return CodeWriteSpecial }

func (s Special) Data() []byte { return append([]byte(nil), s.payload...) }

func (s Special) String() string { return s.Name }

// Tone selects one of the built in speaker sounds.
type Tone byte

const (
	ToneContinuous Tone = '0' // 2 seconds
	ToneShortBeeps Tone = '1' // three short beeps over 2 seconds
)

// ClearMemory deletes every file from sign memory.
func ClearMemory() Special {
	return Special{Name: "clear memory", payload: []byte("$$$$")}
}

// SoftReset restarts the sign without clearing memory.
func SoftReset() Special {
	return Special{Name: "soft reset", payload: []byte{','}}
}

// SetTimeOfDay sets the sign clock to the hour and minute of t.
func SetTimeOfDay(t time.Time) Special {
	return Special{
		Name:    "set time",
		payload: fmt.Appendf([]byte{' '}, "%02d%02d", t.Hour(), t.Minute()),
	}
}

// SetDayOfWeek sets the sign calendar day, Sunday being '1'.
func SetDayOfWeek(day time.Weekday) Special {
	return Special{Name: "set day", payload: []byte{'&', byte('1' + int(day))}}
}

// SetTimeFormat switches the clock between 24 hour and AM/PM display.
func SetTimeFormat(twentyFourHour bool) Special {
	format := byte('S')
	if twentyFourHour {
		format = 'M'
	}
	return Special{Name: "set time format", payload: []byte{'\'', format}}
}

// GenerateTone plays one of the built in tones.
func GenerateTone(tone Tone) Special {
	return Special{Name: "tone", payload: []byte{'(', byte(tone)}}
}

// ToggleSpeaker enables or disables the sign speaker.
func ToggleSpeaker(enabled bool) Special {
	if enabled {
		return Special{Name: "speaker on", payload: []byte("!00")}
	}
	return Special{Name: "speaker off", payload: []byte("!FF")}
}
