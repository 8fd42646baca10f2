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
)

const DefaultMQTTTopic = AppName

// MQTT bridges the sign to a broker on the hackspace network. An empty
// broker disables it.
type MQTT struct {
	Broker string   `toml:"broker,omitempty"`
	Topic  string   `toml:"topic"`
	Filter []string `toml:"filter,omitempty"`
	Text   bool     `toml:"text"`
}

// MQTTBroker is the broker address as host:port, or a full URL.
func (c *Instance) MQTTBroker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimSpace(c.vals.MQTT.Broker)
}

func (c *Instance) SetMQTTBroker(broker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.MQTT.Broker = broker
}

// MQTTTopic is the topic prefix for published notifications and inbound
// text writes, without a trailing slash.
func (c *Instance) MQTTTopic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topic := strings.Trim(c.vals.MQTT.Topic, "/ ")
	if topic == "" {
		return DefaultMQTTTopic
	}
	return topic
}

// MQTTFilter lists the notification methods to publish. Empty publishes all.
func (c *Instance) MQTTFilter() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.MQTT.Filter)
}

// MQTTTextEnabled reports whether messages on <topic>/text/<key> write to
// the sign.
func (c *Instance) MQTTTextEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.MQTT.Text
}
