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


package methods

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/api/notifications"
	"github.com/yorkhackspace/yhs-sign/pkg/api/validation"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

func HandleGetTopics(env requests.RequestEnv) (any, error) {
	return models.TopicsResponse{
		Topics: env.Store.Topics(),
		Order:  env.Store.TopicNames(),
	}, nil
}

func HandleGetTopic(env requests.RequestEnv) (any, error) {
	name := chi.URLParam(env.Request, "name")
	lines, ok := env.Store.Lines(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, name)
	}
	return models.TopicResponse{Lines: lines}, nil
}

// HandlePutTopic replaces a topic's lines and shows them on the sign one
// after another. The topic is only stored once the whole sequence has
// been accepted by the sequencer.
func HandlePutTopic(env requests.RequestEnv) (any, error) {
	name := chi.URLParam(env.Request, "name")
	log.Info().Str("topic", name).Msg("received topic update request")
	if store.IsReserved(name) {
		return nil, fmt.Errorf("%w: %q", ErrReservedTopic, name)
	}
	// GET /text/get/{label} could never read it back
	if store.ParseTarget(name).Kind == store.KindLabel {
		return nil, fmt.Errorf("%w: %q", ErrLabelTopic, name)
	}

	var vctx *validation.Context
	if env.Config != nil {
		vctx = &validation.Context{MaxLineLength: env.Config.MaxLineLength()}
	}
	var params models.PutTopicRequest
	if err := validation.ValidateAndUnmarshalCtx(env.Context, env.Params, &params, vctx); err != nil {
		return nil, err
	}

	var delay time.Duration
	if env.Config != nil {
		delay = env.Config.LineDelay()
	}
	if params.Delay != "" {
		d, err := time.ParseDuration(params.Delay)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", validation.ErrInvalidParams, err)
		}
		delay = d
	}

	target := store.Topic(name)
	cmds := make([]sequencer.Command, 0, len(params.Lines)*2)
	for i, line := range params.Lines {
		if i > 0 && delay > 0 {
			cmds = append(cmds, sequencer.Delay{Duration: delay})
		}
		cmds = append(cmds, sequencer.WriteText{Target: target, Text: line})
	}

	// Submit validates and encodes every line before anything is queued,
	// so a rejected body never reaches the store.
	job, err := env.Sequencer.Submit(env.Context, sequencer.Sequence{
		Source:   Source,
		Commands: cmds,
	})
	if err != nil {
		return nil, err
	}
	env.Store.SetLines(name, params.Lines)
	notifications.TopicUpdated(env.Notifications, name, params.Lines)

	resp, err := wait(env, job)
	if env.Rotator != nil {
		env.Rotator.Jump(name)
	}
	return resp, err
}

func HandleDeleteTopic(env requests.RequestEnv) (any, error) {
	name := chi.URLParam(env.Request, "name")
	log.Info().Str("topic", name).Msg("received topic delete request")
	if store.IsReserved(name) {
		return nil, fmt.Errorf("%w: %q", ErrReservedTopic, name)
	}
	if !env.Store.DeleteTopic(name) {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, name)
	}
	if env.Rotator != nil {
		env.Rotator.Deleted(name)
	}
	notifications.TopicDeleted(env.Notifications, name)
	return nil, nil
}
