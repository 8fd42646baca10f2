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

package requests

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

// TopicRotator is told when topics change so it can follow them.
type TopicRotator interface {
	Jump(topic string)
	Deleted(topic string)
	Current() (topic string, remaining int)
}

type RequestEnv struct {
	Context       context.Context
	Config        *config.Instance
	Sequencer     *sequencer.Sequencer
	Store         *store.Store
	Transport     transport.Transport
	Rotator       TopicRotator
	Notifications chan<- models.Notification
	Request       *http.Request
	Params        json.RawMessage
}
