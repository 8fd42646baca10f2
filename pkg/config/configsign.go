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

package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultDevice        = "/dev/ttyUSB0"
	DefaultBaudRate      = 9600
	DefaultWriteTimeout  = 2 * time.Second
	DefaultTypeCode      = "Z"
	DefaultAddress       = "00"
	DefaultFrameSize     = 64
	DefaultMaxTextLength = 250
)

type Sign struct {
	Device        string `toml:"device"`
	WriteTimeout  string `toml:"write_timeout"`
	TypeCode      string `toml:"type_code"`
	Address       string `toml:"address"`
	BaudRate      int    `toml:"baud_rate"`
	FrameSize     int    `toml:"frame_size"`
	MaxTextLength int    `toml:"max_text_length"`
	Fake          bool   `toml:"fake"`
	Transliterate bool   `toml:"transliterate"`
}

func (c *Instance) SignDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sign.Device == "" {
		return DefaultDevice
	}
	return c.vals.Sign.Device
}

func (c *Instance) SetSignDevice(device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sign.Device = device
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sign.BaudRate <= 0 {
		return DefaultBaudRate
	}
	return c.vals.Sign.BaudRate
}

func (c *Instance) SetBaudRate(rate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sign.BaudRate = rate
}

// FakeSign reports whether frames should go to the logging fake transport
// instead of the serial device.
func (c *Instance) FakeSign() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Sign.Fake
}

func (c *Instance) SetFakeSign(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sign.Fake = enabled
}

func (c *Instance) WriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Sign.WriteTimeout, DefaultWriteTimeout, "sign.write_timeout")
}

func (c *Instance) TypeCode() byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Sign.TypeCode) != 1 {
		return DefaultTypeCode[0]
	}
	return c.vals.Sign.TypeCode[0]
}

func (c *Instance) SignAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Sign.Address) != 2 {
		return DefaultAddress
	}
	return c.vals.Sign.Address
}

func (c *Instance) FrameSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sign.FrameSize <= 0 {
		return DefaultFrameSize
	}
	return c.vals.Sign.FrameSize
}

func (c *Instance) MaxTextLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sign.MaxTextLength <= 0 {
		return DefaultMaxTextLength
	}
	return c.vals.Sign.MaxTextLength
}

func (c *Instance) Transliterate() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Sign.Transliterate
}

// parseDuration returns def for empty or invalid values. Caller must hold mu.
func parseDuration(value string, def time.Duration, key string) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration in config, using default")
		return def
	}
	return d
}
