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
	"slices"
	"strings"
	"time"
)

const (
	DefaultLabel          = "A"
	DefaultRotateInterval = 15 * time.Second
	DefaultMaxLineLength  = 60
)

// Text holds the recognized keys for direct text writes. The list is
// re-read when the config file changes.
type Text struct {
	Label string   `toml:"label"`
	Keys  []string `toml:"keys,multiline"`
}

type Topics struct {
	Label          string `toml:"label"`
	RotateInterval string `toml:"rotate_interval"`
	LineDelay      string `toml:"line_delay"`
	DataFile       string `toml:"data_file,omitempty"`
	LegacyFile     string `toml:"legacy_file,omitempty"`
	MaxLineLength  int    `toml:"max_line_length"`
	Rotate         bool   `toml:"rotate"`
}

func (c *Instance) TextKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Text.Keys)
}

func (c *Instance) SetTextKeys(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Text.Keys = slices.Clone(keys)
}

func (c *Instance) IsTextKey(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.vals.Text.Keys, key)
}

func (c *Instance) TextLabel() byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return labelOrDefault(c.vals.Text.Label)
}

func (c *Instance) TopicLabel() byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return labelOrDefault(c.vals.Topics.Label)
}

func (c *Instance) RotateTopics() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Topics.Rotate
}

func (c *Instance) SetRotateTopics(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Topics.Rotate = enabled
}

func (c *Instance) RotateInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := parseDuration(c.vals.Topics.RotateInterval, DefaultRotateInterval, "topics.rotate_interval")
	if d == 0 {
		return DefaultRotateInterval
	}
	return d
}

func (c *Instance) LineDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Topics.LineDelay, 0, "topics.line_delay")
}

func (c *Instance) MaxLineLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Topics.MaxLineLength <= 0 {
		return DefaultMaxLineLength
	}
	return c.vals.Topics.MaxLineLength
}

// TopicsDataFile returns where topic lines are persisted. Relative paths and
// the empty default resolve against dataDir.
func (c *Instance) TopicsDataFile(dataDir string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	path := c.vals.Topics.DataFile
	if path == "" {
		path = TopicsDbFile
	}
	if !strings.HasPrefix(path, "/") && dataDir != "" {
		return dataDir + "/" + path
	}
	return path
}

func labelOrDefault(label string) byte {
	if len(label) != 1 {
		return DefaultLabel[0]
	}
	return label[0]
}

// TopicsLegacyFile is the JSON topics file of the previous sign service,
// imported once at startup when set.
func (c *Instance) TopicsLegacyFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Topics.LegacyFile
}
