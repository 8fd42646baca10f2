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
	"net/http"

	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

type TextResponse struct {
	Text string `json:"text"`
}

type TopicsResponse struct {
	Topics map[string][]string `json:"topics"`
	Order  []string            `json:"order"`
}

type TopicResponse struct {
	Lines []string `json:"lines"`
}

type JobResponse struct {
	Job sequencer.JobStatus `json:"job"`
}

type JobsResponse struct {
	Jobs []sequencer.JobStatus `json:"jobs"`
}

// JobAccepted is returned when a job was queued but not waited for.
type JobAccepted struct {
	Job sequencer.JobStatus `json:"job"`
}

func (JobAccepted) StatusCode() int {
	return http.StatusAccepted
}

type HealthResponse struct {
	Version   string           `json:"version"`
	Topic     string           `json:"topic,omitempty"`
	Transport transport.Status `json:"transport"`
	Queue     int              `json:"queue"`
}
