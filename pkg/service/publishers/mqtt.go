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
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

const (
	Source = "mqtt"

	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
	textSubtopic      = "text"
)

type Submitter interface {
	Submit(ctx context.Context, seq sequencer.Sequence) (*sequencer.Job, error)
}

type Options struct {
	// Client replaces the paho client built from Broker.
	Client mqtt.Client
	// Submitter receives text writes from <topic>/text/<key>; nil disables
	// inbound messages.
	Submitter Submitter
	Broker    string
	Topic     string
	Filter    []string
}

// MQTTBridge publishes sign notifications to an MQTT broker under
// <topic>/<method> and turns messages on <topic>/text/<key> into text
// writes.
type MQTTBridge struct {
	client    mqtt.Client
	submitter Submitter
	broker    string
	topic     string
	filter    []string
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func NewMQTTBridge(opts Options) *MQTTBridge {
	b := &MQTTBridge{
		client:    opts.Client,
		submitter: opts.Submitter,
		broker:    opts.Broker,
		topic:     strings.TrimSuffix(opts.Topic, "/"),
		filter:    opts.Filter,
	}
	if b.client == nil {
		co := mqtt.NewClientOptions()
		co.AddBroker(brokerURL(b.broker))
		co.SetClientID("yhs-sign-" + uuid.New().String()[:8])
		co.SetAutoReconnect(true)
		co.SetConnectRetry(true)
		co.SetConnectTimeout(connectTimeout)
		co.OnConnect = func(_ mqtt.Client) {
			log.Info().Msgf("mqtt: connected to %s", b.broker)
		}
		co.OnConnectionLost = func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		}
		b.client = mqtt.NewClient(co)
	}
	return b
}

// Run connects and forwards notifications until ctx is done or the channel
// is closed. MQTT problems never stop the sign service: an unreachable
// broker is retried by the client, a rejected connection disables the
// bridge.
func (b *MQTTBridge) Run(ctx context.Context, notifications <-chan models.Notification) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			log.Error().Err(fmt.Errorf("failed to connect to MQTT broker %s: %w", b.broker, err)).
				Msg("mqtt bridge disabled")
			return nil
		}
	case <-ctx.Done():
		b.client.Disconnect(disconnectQuiesce)
		return nil
	}
	defer func() {
		log.Debug().Msg("mqtt: disconnecting")
		b.client.Disconnect(disconnectQuiesce)
	}()

	if b.submitter != nil {
		filter := b.topic + "/" + textSubtopic + "/+"
		sub := b.client.Subscribe(filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
			b.handleText(ctx, msg)
		})
		if sub.WaitTimeout(publishTimeout) && sub.Error() != nil {
			log.Error().Err(sub.Error()).Str("topic", filter).Msg("mqtt: failed to subscribe")
		} else {
			log.Info().Str("topic", filter).Msg("mqtt: accepting text writes")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt: notification channel closed")
				return nil
			}
			b.publish(notif)
		}
	}
}

func (b *MQTTBridge) matchesFilter(method string) bool {
	return len(b.filter) == 0 || slices.Contains(b.filter, method)
}

func (b *MQTTBridge) publish(notif models.Notification) {
	if !b.matchesFilter(notif.Method) {
		return
	}

	payload := []byte(notif.Params)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	topic := b.topic + "/" + notif.Method
	token := b.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("mqtt: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("mqtt: failed to publish")
		return
	}
	log.Debug().Str("topic", topic).Msg("mqtt: published notification")
}

// textKey extracts <key> from <topic>/text/<key>.
func (b *MQTTBridge) textKey(topic string) (string, bool) {
	key, ok := strings.CutPrefix(topic, b.topic+"/"+textSubtopic+"/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// handleText queues the message payload as a write to the text key. The
// job runs in the background; failures are only logged.
func (b *MQTTBridge) handleText(ctx context.Context, msg mqtt.Message) {
	key, ok := b.textKey(msg.Topic())
	if !ok {
		log.Warn().Str("topic", msg.Topic()).Msg("mqtt: ignoring message on unexpected topic")
		return
	}
	text := strings.TrimRight(string(msg.Payload()), "\r\n")

	job, err := b.submitter.Submit(ctx, sequencer.Write(Source, store.TextKey(key), text))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("mqtt: rejected text write")
		return
	}
	log.Debug().Str("key", key).Str("job", job.ID.String()).Msg("mqtt: queued text write")
}
