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


package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/yorkhackspace/yhs-sign/pkg/api/methods"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/validation"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/script"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
)

var badRequestErrors = []error{
	validation.ErrMissingParams,
	validation.ErrInvalidParams,
	methods.ErrReservedTopic,
	methods.ErrLabelTopic,
	methods.ErrInvalidJobID,
	methods.ErrInvalidMode,
	methods.ErrInvalidPos,
	sequencer.ErrEmptySequence,
	sequencer.ErrInvalidDelay,
	sequencer.ErrInvalidTarget,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// errorObject maps an error from the method handlers to its HTTP status
// and the stage of processing it failed at.
func errorObject(err error) (int, models.ErrorObject) {
	obj := models.ErrorObject{Message: err.Error()}

	var (
		verr     *validation.Error
		maxBytes *http.MaxBytesError
		unknown  *sequencer.UnknownTopicError
		encErr   *protocol.EncodingError
		aborted  *sequencer.AbortedError
	)

	switch {
	case errors.As(err, &verr), errors.As(err, &maxBytes), isAny(err, badRequestErrors):
		obj.Stage = models.StageValidation
		return http.StatusBadRequest, obj
	case errors.As(err, &unknown):
		obj.Stage = models.StageValidation
		obj.Suggestion = unknown.Suggestion
		return http.StatusNotFound, obj
	case errors.Is(err, methods.ErrTopicNotFound), errors.Is(err, methods.ErrJobNotFound):
		obj.Stage = models.StageValidation
		return http.StatusNotFound, obj
	case errors.As(err, &encErr):
		obj.Stage = models.StageEncoding
		return http.StatusBadRequest, obj
	case errors.Is(err, script.ErrUnsupportedLanguage), errors.Is(err, script.ErrInvalidScript):
		obj.Stage = models.StageScript
		return http.StatusBadRequest, obj
	case errors.As(err, &aborted):
		obj.Completed = aborted.Completed
		obj.Total = aborted.Total
		switch {
		case errors.Is(aborted.Err, sequencer.ErrStopped):
			obj.Stage = models.StageQueue
			return http.StatusServiceUnavailable, obj
		case errors.Is(aborted.Err, context.Canceled):
			obj.Stage = models.StageCanceled
			return http.StatusConflict, obj
		case errors.Is(aborted.Err, helpers.ErrClockUnreliable):
			obj.Stage = models.StageInternal
			return http.StatusServiceUnavailable, obj
		default:
			obj.Stage = models.StageTransport
			return http.StatusBadGateway, obj
		}
	case errors.Is(err, sequencer.ErrQueueFull), errors.Is(err, sequencer.ErrStopped):
		obj.Stage = models.StageQueue
		return http.StatusServiceUnavailable, obj
	case errors.Is(err, context.Canceled):
		obj.Stage = models.StageCanceled
		return http.StatusConflict, obj
	default:
		obj.Stage = models.StageInternal
		return http.StatusInternalServerError, obj
	}
}
