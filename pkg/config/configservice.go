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
	"net"
	"slices"
	"strconv"
	"time"
)

const (
	DefaultAPIPort   = 8080
	DefaultQueueSize = 64
	DefaultRateLimit = 100
)

type Service struct {
	APIListen      string   `toml:"api_listen,omitempty"`
	StaticDir      string   `toml:"static_dir"`
	RequestTimeout string   `toml:"request_timeout"`
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedIPs     []string `toml:"allowed_ips,omitempty"`
	APIPort        int      `toml:"api_port"`
	QueueSize      int      `toml:"queue_size"`
	RateLimit      int      `toml:"rate_limit,omitempty"`
	DiscoveryName  string   `toml:"discovery_name,omitempty"`
	Discovery      bool     `toml:"discovery"`
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiPortLocked()
}

// apiPortLocked returns the API port. Caller must hold mu (read or write).
func (c *Instance) apiPortLocked() int {
	if c.vals.Service.APIPort <= 0 {
		return DefaultAPIPort
	}
	return c.vals.Service.APIPort
}

func (c *Instance) SetAPIPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.APIPort = port
}

// APIListen returns the address for the HTTP server, combining the optional
// listen host with the API port.
func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return net.JoinHostPort(c.vals.Service.APIListen, strconv.Itoa(c.apiPortLocked()))
}

func (c *Instance) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Service.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return slices.Clone(c.vals.Service.AllowedOrigins)
}

func (c *Instance) StaticDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.StaticDir
}

func (c *Instance) QueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return c.vals.Service.QueueSize
}

func (c *Instance) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := parseDuration(c.vals.Service.RequestTimeout, APIRequestTimeout, "service.request_timeout")
	if d == 0 {
		return APIRequestTimeout
	}
	return d
}

// AllowedIPs lists the addresses and CIDR ranges allowed to use the API.
// Empty allows everyone.
func (c *Instance) AllowedIPs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Service.AllowedIPs)
}

// RateLimit returns the allowed API requests per minute per client. Zero
// means the default, negative disables limiting.
func (c *Instance) RateLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.RateLimit == 0 {
		return DefaultRateLimit
	}
	return c.vals.Service.RateLimit
}

// DiscoveryEnabled reports whether the API is advertised over mDNS.
func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Discovery
}

func (c *Instance) SetDiscovery(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.Discovery = enabled
}

// DiscoveryInstanceName is the advertised mDNS instance name. Empty means
// the hostname.
func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DiscoveryName
}

func (c *Instance) SetDiscoveryName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.DiscoveryName = name
}
