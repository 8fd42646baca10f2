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
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/api/validation"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/script"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

// HandlePostScript parses a script into a sequence and runs it. Writes
// without an explicit target go to the request's key or label.
func HandlePostScript(env requests.RequestEnv) (any, error) {
	var params models.PostScriptRequest
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	log.Info().Str("language", params.Language).Msg("received script request")

	var target store.Target
	switch {
	case params.Key != "":
		target = store.TextKey(params.Key)
	case params.Label != "":
		target = store.Label(params.Label[0])
	}

	seq, err := script.Parse(params.Language, params.Script, target)
	if err != nil {
		return nil, err
	}
	return submit(env, seq)
}
