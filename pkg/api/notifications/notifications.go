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

package notifications

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
)

// sendNotification never blocks: the sequencer worker publishes through
// here and must not stall on a slow websocket.
func sendNotification(ns chan<- models.Notification, method string, payload any) {
	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("marshalling notification params")
			return
		}
		params = data
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping notification")
	}
}

var jobMethods = map[sequencer.EventType]string{
	sequencer.EventQueued:    models.NotificationJobQueued,
	sequencer.EventStarted:   models.NotificationJobStarted,
	sequencer.EventCompleted: models.NotificationJobCompleted,
	sequencer.EventAborted:   models.NotificationJobAborted,
}

func JobEvent(ns chan<- models.Notification, e sequencer.Event) {
	method, ok := jobMethods[e.Type]
	if !ok {
		log.Warn().Str("type", string(e.Type)).Msg("unknown job event")
		return
	}
	sendNotification(ns, method, e.Job)
}

type topicParams struct {
	Lines []string `json:"lines,omitempty"`
	Name  string   `json:"name"`
}

func TopicUpdated(ns chan<- models.Notification, name string, lines []string) {
	sendNotification(ns, models.NotificationTopicUpdated, topicParams{Name: name, Lines: lines})
}

func TopicDeleted(ns chan<- models.Notification, name string) {
	sendNotification(ns, models.NotificationTopicDeleted, topicParams{Name: name})
}
