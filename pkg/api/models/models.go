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

package models

import (
	"encoding/json"
)

const (
	NotificationJobQueued    = "job.queued"
	NotificationJobStarted   = "job.started"
	NotificationJobCompleted = "job.completed"
	NotificationJobAborted   = "job.aborted"
	NotificationTopicUpdated = "topic.updated"
	NotificationTopicDeleted = "topic.deleted"
)

// Error stages reported to clients.
const (
	StageValidation = "validation"
	StageEncoding   = "encoding"
	StageScript     = "script"
	StageQueue      = "queue"
	StageTransport  = "transport"
	StageCanceled   = "canceled"
	StageInternal   = "internal"
)

type Notification struct {
	Method string
	Params json.RawMessage
}

// NotificationObject is the websocket frame for a notification, a
// JSON-RPC request without an id.
type NotificationObject struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorObject struct {
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Completed  int    `json:"completed,omitempty"`
	Total      int    `json:"total,omitempty"`
}

type ErrorResponse struct {
	Error ErrorObject `json:"error"`
}
