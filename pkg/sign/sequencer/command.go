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

package sequencer

import (
	"time"

	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

// MaxDelay bounds a single delay step so one script cannot hold the sign
// indefinitely.
const MaxDelay = 10 * time.Minute

// Command is one step of a Sequence: WriteText, Delay or Special.
type Command interface {
	isCommand()
}

// WriteText shows Text on the label Target resolves to.
type WriteText struct {
	Target   store.Target
	Text     string
	Position protocol.Position
	Mode     protocol.Mode
}

// Delay pauses the sequence. Other submissions keep queueing meanwhile.
type Delay struct {
	Duration time.Duration
}

// SpecialOp is a sign control operation.
type SpecialOp int

const (
	OpClearMemory SpecialOp = iota
	OpSoftReset
	OpBeep
	OpShortBeeps
	OpSpeakerOn
	OpSpeakerOff
	// OpSyncTime sets the sign clock from the service clock when the step
	// runs, not when it is submitted.
	OpSyncTime
)

func (o SpecialOp) String() string {
	switch o {
	case OpClearMemory:
		return "clear"
	case OpSoftReset:
		return "reset"
	case OpBeep:
		return "beep"
	case OpShortBeeps:
		return "beep.short"
	case OpSpeakerOn:
		return "speaker.on"
	case OpSpeakerOff:
		return "speaker.off"
	case OpSyncTime:
		return "time.sync"
	default:
		return "unknown"
	}
}

type Special struct {
	Op SpecialOp
}

func (WriteText) isCommand() {}
func (Delay) isCommand()     {}
func (Special) isCommand()   {}

// Sequence is an ordered list of commands run as one job. Source names the
// caller for logs and job status.
type Sequence struct {
	Source   string
	Commands []Command
}

// Write is a sequence of exactly one text write.
func Write(source string, target store.Target, text string) Sequence {
	return Sequence{
		Source:   source,
		Commands: []Command{WriteText{Target: target, Text: text}},
	}
}
