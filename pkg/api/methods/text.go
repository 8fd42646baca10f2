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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/api/validation"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

// HandlePutText writes one line of text to a configured text key.
func HandlePutText(env requests.RequestEnv) (any, error) {
	key := chi.URLParam(env.Request, "key")
	log.Info().Str("key", key).Msg("received text write request")

	var params models.PutTextRequest
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}

	cmd := sequencer.WriteText{
		Target: store.TextKey(key),
		Text:   *params.Text,
	}
	if params.Mode != "" {
		mode, ok := protocol.ModeByName(params.Mode)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, params.Mode)
		}
		cmd.Mode = mode
	}
	if params.Position != "" {
		pos, ok := protocol.PositionByName(params.Position)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPos, params.Position)
		}
		cmd.Position = pos
	}

	return submit(env, sequencer.Sequence{
		Source:   Source,
		Commands: []sequencer.Command{cmd},
	})
}

// HandleGetText returns the current text of a label or topic. Nothing
// written yet reads as an empty string.
func HandleGetText(env requests.RequestEnv) (any, error) {
	target := store.ParseTarget(chi.URLParam(env.Request, "label"))
	text, _ := env.Store.Read(target)
	return models.TextResponse{Text: text}, nil
}
