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

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownTopic  = errors.New("unknown topic")
	ErrQueueFull     = errors.New("sequencer queue is full")
	ErrStopped       = errors.New("sequencer stopped")
	ErrEmptySequence = errors.New("sequence has no commands")
	ErrInvalidDelay  = errors.New("invalid delay")
	ErrInvalidTarget = errors.New("invalid target")
)

// UnknownTopicError is returned when a text key is not in the recognized
// set. Suggestion is the closest known key, if any is close enough.
type UnknownTopicError struct {
	Name       string
	Suggestion string
}

func (e *UnknownTopicError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v %q, did you mean %q?", ErrUnknownTopic, e.Name, e.Suggestion)
	}
	return fmt.Sprintf("%v %q", ErrUnknownTopic, e.Name)
}

func (*UnknownTopicError) Unwrap() error {
	return ErrUnknownTopic
}

// AbortedError reports a job that stopped before finishing every step.
// Steps before Completed took effect and are not rolled back.
type AbortedError struct {
	Err       error
	JobID     uuid.UUID
	Completed int
	Total     int
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("sequence %s aborted after %d of %d steps: %v", e.JobID, e.Completed, e.Total, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}
