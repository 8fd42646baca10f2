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
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
)

func lookupJob(env requests.RequestEnv) (*sequencer.Job, error) {
	raw := chi.URLParam(env.Request, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobID, raw)
	}
	job, ok := env.Sequencer.Job(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

func HandleListJobs(env requests.RequestEnv) (any, error) {
	return models.JobsResponse{Jobs: env.Sequencer.Jobs()}, nil
}

func HandleGetJob(env requests.RequestEnv) (any, error) {
	job, err := lookupJob(env)
	if err != nil {
		return nil, err
	}
	return models.JobResponse{Job: job.Status()}, nil
}

// HandleCancelJob cancels a queued or running job. The returned status may
// still read running; the job stops at its next step boundary.
func HandleCancelJob(env requests.RequestEnv) (any, error) {
	job, err := lookupJob(env)
	if err != nil {
		return nil, err
	}
	log.Info().Str("job", job.Status().ID).Msg("received job cancel request")
	job.Cancel()
	return models.JobResponse{Job: job.Status()}, nil
}
