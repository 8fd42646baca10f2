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

// Package protocol encodes commands for Alpha signs using the M-Protocol
// and decodes the resulting packets back for inspection.
//
// A packet on the wire looks like:
//
//	NUL x5 | SOH | type code | address | STX | command code | data | EOT
//
// Packets longer than the configured frame size are split into consecutive
// frames which the transport sends one after another.
package protocol

// Control bytes
const (
	NUL byte = 0x00
	SOH byte = 0x01
	STX byte = 0x02
	ETX byte = 0x03
	EOT byte = 0x04
	ESC byte = 0x1B
)

// Command codes
const (
	CodeWriteText    byte = 'A' // 0x41
	CodeReadText     byte = 'B' // 0x42
	CodeWriteSpecial byte = 'E' // 0x45
)

// Type codes select which signs on the bus act on a packet.
const (
	TypeAllSigns   byte = 'Z' // 0x5A, every sign regardless of model
	TypeBetabrite  byte = '^'
	TypeOneLine    byte = '1'
	TypeTwoLine    byte = '2'
	BroadcastAddr       = "00"
	headerNULCount      = 5
)

// PriorityLabel is the file label the sign shows in preference to its run
// sequence.
const PriorityLabel byte = '0'

const (
	DefaultFrameSize     = 64
	DefaultMaxTextLength = 250
)

// Position is the display line a text file is written to.
type Position byte

const (
	PositionMiddleLine Position = 0x20
	PositionTopLine    Position = 0x22
	PositionBottomLine Position = 0x26
	PositionFill       Position = 0x30
	PositionLeft       Position = 0x31
	PositionRight      Position = 0x32
)

// Mode is a transition effect. Special modes are sent as two bytes, 'n'
// followed by the effect, and are stored here as one uint16.
type Mode uint16

const (
	ModeRotate           Mode = 0x61
	ModeHold             Mode = 0x62
	ModeFlash            Mode = 0x63
	ModeRollUp           Mode = 0x65
	ModeRollDown         Mode = 0x66
	ModeRollLeft         Mode = 0x67
	ModeRollRight        Mode = 0x68
	ModeWipeUp           Mode = 0x69
	ModeWipeDown         Mode = 0x6A
	ModeWipeLeft         Mode = 0x6B
	ModeWipeRight        Mode = 0x6C
	ModeScroll           Mode = 0x6D
	ModeAuto             Mode = 0x6F
	ModeRollIn           Mode = 0x70
	ModeRollOut          Mode = 0x71
	ModeWipeIn           Mode = 0x72
	ModeWipeOut          Mode = 0x73
	ModeCompressedRotate Mode = 0x74
	ModeExplode          Mode = 0x75
	ModeClock            Mode = 0x76

	// not supported by every sign
	ModeTwinkle     Mode = 0x6E30
	ModeSparkle     Mode = 0x6E31
	ModeSnow        Mode = 0x6E32
	ModeInterlock   Mode = 0x6E33
	ModeSwitch      Mode = 0x6E34
	ModeSlide       Mode = 0x6E35
	ModeSpray       Mode = 0x6E36
	ModeStarburst   Mode = 0x6E37
	ModeWelcome     Mode = 0x6E38
	ModeSlotMachine Mode = 0x6E39
	ModeNewsFlash   Mode = 0x6E3A
	ModeTrumpet     Mode = 0x6E3B
	ModeCycleColors Mode = 0x6E43

	specialModePrefix byte = 0x6E
)

func (m Mode) bytes() []byte {
	if m > 0xFF {
		return []byte{byte(m >> 8), byte(m)}
	}
	return []byte{byte(m)}
}

var modeNames = map[string]Mode{
	"rotate":            ModeRotate,
	"hold":              ModeHold,
	"flash":             ModeFlash,
	"roll-up":           ModeRollUp,
	"roll-down":         ModeRollDown,
	"roll-left":         ModeRollLeft,
	"roll-right":        ModeRollRight,
	"wipe-up":           ModeWipeUp,
	"wipe-down":         ModeWipeDown,
	"wipe-left":         ModeWipeLeft,
	"wipe-right":        ModeWipeRight,
	"scroll":            ModeScroll,
	"auto":              ModeAuto,
	"roll-in":           ModeRollIn,
	"roll-out":          ModeRollOut,
	"wipe-in":           ModeWipeIn,
	"wipe-out":          ModeWipeOut,
	"compressed-rotate": ModeCompressedRotate,
	"explode":           ModeExplode,
	"clock":             ModeClock,
	"twinkle":           ModeTwinkle,
	"sparkle":           ModeSparkle,
	"snow":              ModeSnow,
	"interlock":         ModeInterlock,
	"switch":            ModeSwitch,
	"slide":             ModeSlide,
	"spray":             ModeSpray,
	"starburst":         ModeStarburst,
	"welcome":           ModeWelcome,
	"slot-machine":      ModeSlotMachine,
	"news-flash":        ModeNewsFlash,
	"trumpet":           ModeTrumpet,
	"cycle-colors":      ModeCycleColors,
}

var positionNames = map[string]Position{
	"middle": PositionMiddleLine,
	"top":    PositionTopLine,
	"bottom": PositionBottomLine,
	"fill":   PositionFill,
	"left":   PositionLeft,
	"right":  PositionRight,
}

// ModeByName looks up a transition mode by its script name, e.g. "scroll".
func ModeByName(name string) (Mode, bool) {
	m, ok := modeNames[name]
	return m, ok
}

// PositionByName looks up a display position by its script name, e.g. "top".
func PositionByName(name string) (Position, bool) {
	p, ok := positionNames[name]
	return p, ok
}

// ValidLabel reports whether b can address a file in sign memory.
func ValidLabel(b byte) bool {
	return b >= 0x20 && b <= 0x7E && b != '?'
}
