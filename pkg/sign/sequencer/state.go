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

import "sync/atomic"

// JobState is where a job is in its lifecycle.
type JobState int32

const (
	StateQueued JobState = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s JobState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Done reports whether the state is final.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateAborted
}

// IsValidTransition checks if moving a job from one state to another is
// allowed.
func IsValidTransition(from, to JobState) bool {
	switch from {
	case StateQueued:
		// cancelled before it reached the head of the queue
		return to == StateRunning || to == StateAborted
	case StateRunning:
		return to == StateCompleted || to == StateAborted
	case StateCompleted, StateAborted:
		return false
	default:
		return false
	}
}

// stateManager holds a job state and only allows valid transitions.
type stateManager struct {
	state atomic.Int32
}

func (sm *stateManager) Get() JobState {
	return JobState(sm.state.Load())
}

// Transition moves from exactly the given state, failing if another
// goroutine moved the job first.
func (sm *stateManager) Transition(from, to JobState) bool {
	if !IsValidTransition(from, to) {
		return false
	}
	return sm.state.CompareAndSwap(int32(from), int32(to))
}
