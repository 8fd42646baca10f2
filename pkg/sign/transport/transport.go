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

// Package transport moves encoded frames to the sign, either over a serial
// port or into an in-memory log for development.
package transport

import (
	"context"
	"errors"

	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
)

var (
	ErrOpenFailed  = errors.New("failed to open sign device")
	ErrWriteFailed = errors.New("failed to write to sign")
	ErrTimeout     = errors.New("timed out writing to sign")
	ErrClosed      = errors.New("transport closed")
)

// Transport is exclusive access to one sign link. Implementations are not
// required to support concurrent Send calls; the sequencer is the only
// caller.
type Transport interface {
	Send(ctx context.Context, frame protocol.Frame) error
	Close() error
	Name() string
}

// Status is a point in time view of a transport for health reporting.
type Status struct {
	Name       string `json:"name"`
	LastError  string `json:"lastError,omitempty"`
	FramesSent uint64 `json:"framesSent"`
	Connected  bool   `json:"connected"`
	Fake       bool   `json:"fake"`
}

// StatusReporter is implemented by transports that can describe their
// connection state.
type StatusReporter interface {
	Status() Status
}

// StatusOf returns the status of t, or a minimal one built from its name.
func StatusOf(t Transport) Status {
	if r, ok := t.(StatusReporter); ok {
		return r.Status()
	}
	return Status{Name: t.Name(), Connected: true}
}
