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


package publishers

import (
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
)

type publishedMessage struct {
	topic   string
	payload []byte
}

// mockMQTTClient implements mqtt.Client for tests.
type mockMQTTClient struct {
	connectToken *mockToken
	publishError error
	handlers     map[string]mqtt.MessageHandler
	published    []publishedMessage
	disconnects  int
	mu           syncutil.Mutex
	connected    bool
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{
		connectToken: completedToken(nil),
		handlers:     make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTTClient) publishedMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockMQTTClient) handler(filter string) (mqtt.MessageHandler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[filter]
	return h, ok
}

func (m *mockMQTTClient) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectToken.err == nil {
		m.connected = true
	}
	return m.connectToken
}

func (m *mockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
}

func (m *mockMQTTClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	if m.publishError != nil {
		return completedToken(m.publishError)
	}
	data, _ := payload.([]byte)
	m.mu.Lock()
	m.published = append(m.published, publishedMessage{topic: topic, payload: data})
	m.mu.Unlock()
	return completedToken(nil)
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	m.handlers[topic] = cb
	m.mu.Unlock()
	return completedToken(nil)
}

func (*mockMQTTClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return completedToken(errors.New("not supported"))
}

func (*mockMQTTClient) Unsubscribe(_ ...string) mqtt.Token {
	return completedToken(nil)
}

func (*mockMQTTClient) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (*mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockToken implements mqtt.Token. A token with an open done channel never
// completes.
type mockToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *mockToken {
	done := make(chan struct{})
	close(done)
	return &mockToken{err: err, done: done}
}

func pendingToken() *mockToken {
	return &mockToken{done: make(chan struct{})}
}

func (t *mockToken) Wait() bool {
	<-t.done
	return true
}

func (t *mockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *mockToken) Done() <-chan struct{} {
	return t.done
}

func (t *mockToken) Error() error {
	return t.err
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (*mockMessage) Duplicate() bool { return false }
func (*mockMessage) Qos() byte { return 1 }
func (*mockMessage) Retained() bool { return false }
func (m *mockMessage) Topic() string { return m.topic }
func (*mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (*mockMessage) Ack() {}
