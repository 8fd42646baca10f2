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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"go.bug.st/serial"
)

const DefaultWriteTimeout = 2 * time.Second

// Port is the subset of serial.Port the transport writes through.
type Port interface {
	Write(p []byte) (int, error)
	Drain() error
	Close() error
}

// PortOpener opens a serial port. Tests swap in a mock.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

// DefaultPortOpener opens a real serial port.
func DefaultPortOpener(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

type SerialOptions struct {
	Clock        clockwork.Clock
	Opener       PortOpener
	Device       string
	BaudRate     int
	WriteTimeout time.Duration
}

// Serial sends frames to a sign over a serial port at 8N1.
type Serial struct {
	lastErr   atomic.Value
	port      Port
	clock     clockwork.Clock
	busy      chan struct{}
	device    string
	timeout   time.Duration
	sent      atomic.Uint64
	mu        syncutil.Mutex
	closed    bool
	connected atomic.Bool
}

// OpenSerial opens the device. Any failure is ErrOpenFailed and leaves
// nothing to close.
func OpenSerial(opts SerialOptions) (*Serial, error) {
	if opts.Opener == nil {
		opts.Opener = DefaultPortOpener
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Device == "" {
		return nil, fmt.Errorf("%w: no device configured", ErrOpenFailed)
	}

	port, err := opts.Opener(opts.Device, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, opts.Device, err)
	}

	s := &Serial{
		port:    port,
		clock:   opts.Clock,
		busy:    make(chan struct{}, 1),
		device:  opts.Device,
		timeout: opts.WriteTimeout,
	}
	s.connected.Store(true)

	log.Info().
		Str("device", opts.Device).
		Int("baud", opts.BaudRate).
		Msg("opened sign serial port")

	return s, nil
}

func (s *Serial) Name() string {
	return "serial:" + s.device
}

// Send writes one frame and drains the output buffer. A write that does not
// finish within the write timeout returns ErrTimeout and keeps the port
// busy until it completes, so the next Send also times out instead of
// interleaving bytes.
func (s *Serial) Send(ctx context.Context, frame protocol.Frame) error {
	s.mu.Lock()
	closed := s.closed
	port := s.port
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !s.connected.Load() {
		return s.fail(fmt.Errorf("%w: device disconnected", ErrWriteFailed))
	}

	timer := s.clock.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.busy <- struct{}{}:
	case <-timer.Chan():
		return s.fail(fmt.Errorf("%w: previous write still pending", ErrTimeout))
	case <-ctx.Done():
		return fmt.Errorf("send cancelled: %w", ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-s.busy }()
		done <- writeAll(port, frame)
	}()

	select {
	case err := <-done:
		if err != nil {
			if isDisconnectionError(err) {
				s.connected.Store(false)
				log.Warn().Str("device", s.device).Err(err).Msg("sign device disconnected")
			}
			return s.fail(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
		s.sent.Add(1)
		log.Trace().Str("device", s.device).Stringer("frame", frame).Msg("sent frame")
		return nil
	case <-timer.Chan():
		return s.fail(fmt.Errorf("%w after %s", ErrTimeout, s.timeout))
	case <-ctx.Done():
		return fmt.Errorf("send cancelled: %w", ctx.Err())
	}
}

func writeAll(port Port, frame protocol.Frame) error {
	n, err := port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	return port.Drain()
}

func (s *Serial) fail(err error) error {
	s.lastErr.Store(err.Error())
	return err
}

// Close releases the port. It is safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.connected.Store(false)

	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	log.Info().Str("device", s.device).Msg("closed sign serial port")
	return nil
}

func (s *Serial) Status() Status {
	st := Status{
		Name:       s.Name(),
		Connected:  s.connected.Load(),
		FramesSent: s.sent.Load(),
	}
	if v, ok := s.lastErr.Load().(string); ok {
		st.LastError = v
	}
	return st
}

// isDisconnectionError checks if an error means the device has gone away
// rather than a configuration problem.
func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	// the library returns both value and pointer forms depending on platform
	var portErr serial.PortError
	var portErrPtr *serial.PortError
	switch {
	case errors.As(err, &portErr):
		return isDisconnectionCode(portErr.Code())
	case errors.As(err, &portErrPtr) && portErrPtr != nil:
		return isDisconnectionCode(portErrPtr.Code())
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "bad file descriptor")
}

func isDisconnectionCode(code serial.PortErrorCode) bool {
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}
