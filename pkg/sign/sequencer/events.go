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

package sequencer

// EventType names a job lifecycle event.
type EventType string

const (
	EventQueued    EventType = "job.queued"
	EventStarted   EventType = "job.started"
	EventCompleted EventType = "job.completed"
	EventAborted   EventType = "job.aborted"
)

// Event is published to the notify callback as jobs move through the
// queue. The callback runs on the sequencer's goroutines and must not block.
type Event struct {
	Type EventType `json:"type"`
	Job  JobStatus `json:"job"`
}
