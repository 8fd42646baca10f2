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

// Package script turns sign scripts into sequences for the sequencer.
//
// The supported language is ZapScript. Commands start with "**" and are
// separated by "||":
//
//	**write:Hello?key=test||**delay:500||**write:[[time]]?label=B||**beep
//
// Text without a "**" prefix is written to the default target.
package script

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-zapscript"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

const LanguageZapScript = "zapscript"

const Source = "script"

const (
	CmdWrite        = "write"
	CmdDelay        = "delay"
	CmdDelaySeconds = "delay.seconds"
	CmdClear        = "clear"
	CmdBeep         = "beep"
	CmdBeepShort    = "beep.short"
	CmdReset        = "reset"
	CmdTimeSync     = "time.sync"
	CmdSpeakerOn    = "speaker.on"
	CmdSpeakerOff   = "speaker.off"
)

const (
	advLabel    = "label"
	advKey      = "key"
	advTopic    = "topic"
	advMode     = "mode"
	advPosition = "position"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported script language")
	ErrInvalidScript       = errors.New("invalid script")
)

type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported script language %q", e.Language)
}

func (*UnsupportedLanguageError) Unwrap() error {
	return ErrUnsupportedLanguage
}

var specials = map[string]sequencer.SpecialOp{
	CmdClear:      sequencer.OpClearMemory,
	CmdBeep:       sequencer.OpBeep,
	CmdBeepShort:  sequencer.OpShortBeeps,
	CmdReset:      sequencer.OpSoftReset,
	CmdTimeSync:   sequencer.OpSyncTime,
	CmdSpeakerOn:  sequencer.OpSpeakerOn,
	CmdSpeakerOff: sequencer.OpSpeakerOff,
}

// Parse parses a script with expressions evaluated against the current
// time.
func Parse(language, src string, defaultTarget store.Target) (sequencer.Sequence, error) {
	hostname, _ := os.Hostname()
	return ParseWithEnv(language, src, defaultTarget, NewEnv(time.Now(), hostname, config.AppVersion))
}

func ParseWithEnv(language, src string, defaultTarget store.Target, env Env) (sequencer.Sequence, error) {
	if !strings.EqualFold(strings.TrimSpace(language), LanguageZapScript) {
		return sequencer.Sequence{}, &UnsupportedLanguageError{Language: language}
	}

	parsed, err := newReader(src).parse()
	if err != nil {
		return sequencer.Sequence{}, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	seq := sequencer.Sequence{
		Source:   Source,
		Commands: make([]sequencer.Command, 0, len(parsed.Cmds)),
	}
	for i, cmd := range parsed.Cmds {
		c, err := convert(cmd, defaultTarget, env)
		if err != nil {
			return sequencer.Sequence{}, fmt.Errorf("%w: command %d (%s): %w", ErrInvalidScript, i+1, cmd.Name, err)
		}
		seq.Commands = append(seq.Commands, c)
	}
	return seq, nil
}

func argOf(cmd zapscript.Command) string {
	if len(cmd.Args) == 0 {
		return ""
	}
	return cmd.Args[0]
}

func convert(cmd zapscript.Command, defaultTarget store.Target, env Env) (sequencer.Command, error) {
	arg, err := evalArg(argOf(cmd), env)
	if err != nil {
		return nil, err
	}

	switch cmd.Name {
	case CmdWrite:
		return convertWrite(cmd, arg, defaultTarget)
	case CmdDelay:
		ms, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("delay must be whole milliseconds: %q", arg)
		}
		if ms < 0 || ms > sequencer.MaxDelay.Milliseconds() {
			return nil, delayRangeError(arg)
		}
		return sequencer.Delay{Duration: time.Duration(ms) * time.Millisecond}, nil
	case CmdDelaySeconds:
		secs, err := strconv.ParseFloat(arg, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("delay must be a number of seconds: %q", arg)
		}
		// float to Duration conversion is undefined outside int64 range
		if math.IsNaN(secs) || secs < 0 || secs > sequencer.MaxDelay.Seconds() {
			return nil, delayRangeError(arg)
		}
		return sequencer.Delay{Duration: time.Duration(secs * float64(time.Second))}, nil
	}

	if op, ok := specials[cmd.Name]; ok {
		if arg != "" {
			return nil, fmt.Errorf("%s takes no argument", cmd.Name)
		}
		return sequencer.Special{Op: op}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd.Name)
}

func convertWrite(cmd zapscript.Command, text string, defaultTarget store.Target) (sequencer.Command, error) {
	target, err := writeTarget(cmd, defaultTarget)
	if err != nil {
		return nil, err
	}
	w := sequencer.WriteText{Target: target, Text: text}

	if name := cmd.AdvArgs.Get(advMode); name != "" {
		mode, ok := protocol.ModeByName(strings.ToLower(name))
		if !ok {
			return nil, fmt.Errorf("unknown mode %q", name)
		}
		w.Mode = mode
	}
	if name := cmd.AdvArgs.Get(advPosition); name != "" {
		pos, ok := protocol.PositionByName(strings.ToLower(name))
		if !ok {
			return nil, fmt.Errorf("unknown position %q", name)
		}
		w.Position = pos
	}
	return w, nil
}

func writeTarget(cmd zapscript.Command, defaultTarget store.Target) (store.Target, error) {
	var targets []store.Target
	if v := cmd.AdvArgs.Get(advLabel); v != "" {
		if len(v) != 1 {
			return store.Target{}, fmt.Errorf("label must be a single character: %q", v)
		}
		targets = append(targets, store.Label(v[0]))
	}
	if v := cmd.AdvArgs.Get(advKey); v != "" {
		targets = append(targets, store.TextKey(v))
	}
	if v := cmd.AdvArgs.Get(advTopic); v != "" {
		targets = append(targets, store.Topic(v))
	}

	switch len(targets) {
	case 0:
		if defaultTarget.Name == "" {
			return store.Target{}, errors.New("write has no target, set ?key=, ?topic= or ?label=")
		}
		return defaultTarget, nil
	case 1:
		return targets[0], nil
	default:
		return store.Target{}, errors.New("write may only set one of label, key or topic")
	}
}

func delayRangeError(arg string) error {
	return fmt.Errorf("%w: %s, must be between 0 and %s", sequencer.ErrInvalidDelay, arg, sequencer.MaxDelay)
}
