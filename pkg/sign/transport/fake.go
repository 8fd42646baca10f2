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

package transport

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
)

// Record is one frame captured by the fake transport.
type Record struct {
	At    time.Time
	Frame protocol.Frame
}

// Fake stands in for a sign. Every frame is kept with the clock time it was
// sent and logged at debug level.
type Fake struct {
	clock   clockwork.Clock
	hook    func(protocol.Frame) error
	records []Record
	pending []byte
	mu      syncutil.Mutex
	closed  bool
}

func NewFake(clock clockwork.Clock) *Fake {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Fake{clock: clock}
}

func (*Fake) Name() string {
	return "fake"
}

// SetSendHook installs a function run before each frame is recorded. A
// non-nil error from it fails the send and the frame is not recorded.
func (f *Fake) SetSendHook(hook func(protocol.Frame) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *Fake) Send(ctx context.Context, frame protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(frame); err != nil {
			return err
		}
	}

	cp := protocol.Frame(bytes.Clone(frame))

	f.mu.Lock()
	f.records = append(f.records, Record{At: f.clock.Now(), Frame: cp})
	f.pending = append(f.pending, cp...)
	var complete []byte
	if len(cp) > 0 && cp[len(cp)-1] == protocol.EOT {
		complete = f.pending
		f.pending = nil
	}
	f.mu.Unlock()

	log.Debug().Str("hex", cp.String()).Msg("fake sign: frame")

	if complete != nil {
		pkt, err := protocol.DecodePacket(complete)
		if err != nil {
			log.Debug().Err(err).Msg("fake sign: could not decode packet")
		} else {
			log.Debug().Str("packet", pkt.Describe()).Msg("fake sign: packet")
		}
	}

	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Records returns a copy of every frame sent so far.
func (f *Fake) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.records)
}

func (f *Fake) Frames() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := make([]protocol.Frame, 0, len(f.records))
	for _, r := range f.records {
		frames = append(frames, r.Frame)
	}
	return frames
}

// Packets decodes the complete packets sent so far, in order.
func (f *Fake) Packets() ([]*protocol.Packet, error) {
	var (
		packets []*protocol.Packet
		buf     []byte
	)
	for _, frame := range f.Frames() {
		buf = append(buf, frame...)
		if len(frame) == 0 || frame[len(frame)-1] != protocol.EOT {
			continue
		}
		pkt, err := protocol.DecodePacket(buf)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)
		buf = nil
	}
	return packets, nil
}

// Reset forgets every recorded frame.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	f.pending = nil
}

func (f *Fake) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Name:       f.Name(),
		Connected:  !f.closed,
		FramesSent: uint64(len(f.records)),
		Fake:       true,
	}
}
