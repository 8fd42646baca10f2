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
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models/requests"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

// Source tags jobs submitted through the HTTP API.
const Source = "api"

var (
	ErrReservedTopic = errors.New("topic name is reserved")
	ErrLabelTopic    = errors.New("one-character names are labels, not topics")
	ErrTopicNotFound = errors.New("topic not found")
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidJobID  = errors.New("invalid job id")
	ErrInvalidMode   = errors.New("unknown display mode")
	ErrInvalidPos    = errors.New("unknown display position")
)

func HandleVersion(env requests.RequestEnv) (any, error) {
	log.Debug().Msg("received version request")
	return map[string]string{"version": config.AppVersion}, nil
}

func HandleHealth(env requests.RequestEnv) (any, error) {
	resp := models.HealthResponse{
		Version: config.AppVersion,
		Queue:   env.Sequencer.QueueLength(),
	}
	if env.Transport != nil {
		resp.Transport = transport.StatusOf(env.Transport)
	}
	if env.Rotator != nil {
		resp.Topic, _ = env.Rotator.Current()
	}
	return resp, nil
}

// waitRequested is true unless the caller passed ?wait=false.
func waitRequested(env requests.RequestEnv) bool {
	if env.Request == nil {
		return true
	}
	raw := env.Request.URL.Query().Get("wait")
	if raw == "" {
		return true
	}
	wait, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return wait
}

// waitBudget leaves the router's request timeout some room to write the
// response after the wait gives up.
func waitBudget(cfg *config.Instance) time.Duration {
	timeout := config.APIRequestTimeout
	if cfg != nil {
		timeout = cfg.RequestTimeout()
	}
	return timeout * 9 / 10
}

// submit queues seq and waits for it as wait does.
func submit(env requests.RequestEnv, seq sequencer.Sequence) (any, error) {
	job, err := env.Sequencer.Submit(env.Context, seq)
	if err != nil {
		return nil, err
	}
	return wait(env, job)
}

// wait blocks until job finishes unless the caller opted out. A job still
// running when the wait budget runs out is reported as accepted rather
// than failed.
func wait(env requests.RequestEnv, job *sequencer.Job) (any, error) {
	log.Debug().
		Str("job", job.Status().ID).
		Int("steps", job.Total()).
		Msg("submitted sequence")

	if !waitRequested(env) {
		return models.JobAccepted{Job: job.Status()}, nil
	}

	ctx, cancel := context.WithTimeout(env.Context, waitBudget(env.Config))
	defer cancel()
	if err := job.Wait(ctx); err != nil {
		select {
		case <-job.Done():
			return nil, job.Err()
		default:
			return models.JobAccepted{Job: job.Status()}, nil
		}
	}
	return models.JobResponse{Job: job.Status()}, nil
}
