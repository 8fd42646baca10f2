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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

type stepKind int

const (
	stepWrite stepKind = iota
	stepDelay
	stepSpecial
)

// step is a command after validation, with its frames already encoded.
type step struct {
	target store.Target
	text   string
	frames []protocol.Frame
	delay  time.Duration
	kind   stepKind
	op     SpecialOp
	label  byte
}

// JobStatus is a snapshot of a job for callers and the API.
type JobStatus struct {
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Source      string     `json:"source,omitempty"`
	Error       string     `json:"error,omitempty"`
	Completed   int        `json:"completed"`
	Total       int        `json:"total"`
}

// Job is one submitted sequence.
type Job struct {
	err         error
	owner       *Sequencer
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	source      string
	steps       []step
	state       stateManager
	completed   atomic.Int32
	ID          uuid.UUID
	mu          syncutil.Mutex
}

func newJob(source string, steps []step, now time.Time) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:          uuid.New(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		submittedAt: now,
		source:      source,
		steps:       steps,
	}
}

// Done is closed once the job has completed or been aborted.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its result, or returns
// the context error if ctx ends first. The job keeps running either way.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return fmt.Errorf("waiting for job %s: %w", j.ID, ctx.Err())
	}
}

// Err is the job result: nil when completed, an *AbortedError otherwise.
// It is only meaningful once Done is closed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) State() JobState {
	return j.state.Get()
}

func (j *Job) Total() int {
	return len(j.steps)
}

// Cancel aborts the job. A queued job never starts; a running one stops at
// the next step boundary or during a delay. Finished jobs are unaffected.
func (j *Job) Cancel() {
	j.cancel()
	if j.owner != nil {
		j.owner.abortQueued(j)
	}
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := JobStatus{
		ID:          j.ID.String(),
		State:       j.state.Get().String(),
		Source:      j.source,
		SubmittedAt: j.submittedAt,
		Completed:   int(j.completed.Load()),
		Total:       len(j.steps),
	}
	if !j.startedAt.IsZero() {
		started := j.startedAt
		st.StartedAt = &started
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		st.FinishedAt = &finished
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}

func (j *Job) markStarted(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.startedAt = now
}

// finish records the result and releases waiters. Caller must already
// have moved the state to a final value.
func (j *Job) finish(now time.Time, err error) {
	j.mu.Lock()
	j.err = err
	j.finishedAt = now
	j.mu.Unlock()
	j.cancel()
	close(j.done)
}

func (j *Job) abortedError(cause error) *AbortedError {
	return &AbortedError{
		JobID:     j.ID,
		Completed: int(j.completed.Load()),
		Total:     len(j.steps),
		Err:       cause,
	}
}
