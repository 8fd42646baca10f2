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

// Package sequencer runs sequences of sign commands one job at a time, in
// submission order, on a single worker that owns the transport.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

const (
	DefaultQueueSize   = 64
	DefaultHistorySize = 128
)

// Options configures a Sequencer. Notify may be called with the sequencer lock
// held, so it must not block or call back into the Sequencer.
type Options struct {
	Transport   transport.Transport
	Store       *store.Store
	Encoder     *protocol.Encoder
	Resolver    Resolver
	Clock       clockwork.Clock
	Notify      func(Event)
	QueueSize   int
	HistorySize int
}

type Sequencer struct {
	transport   transport.Transport
	store       *store.Store
	encoder     *protocol.Encoder
	resolver    Resolver
	clock       clockwork.Clock
	notify      func(Event)
	signal      chan struct{}
	jobs        map[uuid.UUID]*Job
	queue       []*Job
	history     []uuid.UUID
	queueSize   int
	historySize int
	mu          syncutil.Mutex
	stopped     bool
}

func New(opts Options) *Sequencer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Store == nil {
		opts.Store = store.New(nil)
	}
	return &Sequencer{
		transport:   opts.Transport,
		store:       opts.Store,
		encoder:     opts.Encoder,
		resolver:    opts.Resolver,
		clock:       opts.Clock,
		notify:      opts.Notify,
		queueSize:   opts.QueueSize,
		historySize: opts.HistorySize,
		signal:      make(chan struct{}, 1),
		jobs:        make(map[uuid.UUID]*Job),
	}
}

// Submit validates and encodes every command of seq, then queues it as one
// job. Validation and encoding errors are returned here and nothing is
// queued or sent.
func (s *Sequencer) Submit(ctx context.Context, seq Sequence) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submit cancelled: %w", err)
	}
	if len(seq.Commands) == 0 {
		return nil, ErrEmptySequence
	}

	steps, err := s.prepare(seq)
	if err != nil {
		return nil, err
	}

	job := newJob(seq.Source, steps, s.clock.Now())
	job.owner = s

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	if len(s.queue) >= s.queueSize {
		s.mu.Unlock()
		return nil, ErrQueueFull
	}
	s.remember(job)
	// queued must reach listeners before the worker can see the job
	s.emit(EventQueued, job)
	s.queue = append(s.queue, job)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}

	log.Debug().
		Str("job", job.ID.String()).
		Str("source", seq.Source).
		Int("steps", len(steps)).
		Msg("queued sequence")

	return job, nil
}

func (s *Sequencer) prepare(seq Sequence) ([]step, error) {
	steps := make([]step, 0, len(seq.Commands))
	for i, cmd := range seq.Commands {
		st, err := s.prepareCommand(cmd)
		if err != nil {
			if len(seq.Commands) > 1 {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (s *Sequencer) prepareCommand(cmd Command) (step, error) {
	switch c := cmd.(type) {
	case WriteText:
		label, err := s.resolver.Resolve(c.Target)
		if err != nil {
			return step{}, err
		}
		text, err := s.encoder.PrepareText(c.Text)
		if err != nil {
			return step{}, err
		}
		frames, err := s.encoder.Encode(protocol.WriteText{
			Label:    label,
			Text:     text,
			Position: c.Position,
			Mode:     c.Mode,
		})
		if err != nil {
			return step{}, err
		}
		return step{kind: stepWrite, target: c.Target, label: label, text: text, frames: frames}, nil
	case Delay:
		if c.Duration < 0 || c.Duration > MaxDelay {
			return step{}, fmt.Errorf("%w: %s, must be between 0 and %s", ErrInvalidDelay, c.Duration, MaxDelay)
		}
		return step{kind: stepDelay, delay: c.Duration}, nil
	case Special:
		st := step{kind: stepSpecial, op: c.Op}
		if c.Op == OpSyncTime {
			return st, nil
		}
		special, err := specialCommand(c.Op)
		if err != nil {
			return step{}, err
		}
		frames, err := s.encoder.Encode(special)
		if err != nil {
			return step{}, err
		}
		st.frames = frames
		return st, nil
	default:
		return step{}, fmt.Errorf("unsupported command %T", cmd)
	}
}

func specialCommand(op SpecialOp) (protocol.Special, error) {
	switch op {
	case OpClearMemory:
		return protocol.ClearMemory(), nil
	case OpSoftReset:
		return protocol.SoftReset(), nil
	case OpBeep:
		return protocol.GenerateTone(protocol.ToneContinuous), nil
	case OpShortBeeps:
		return protocol.GenerateTone(protocol.ToneShortBeeps), nil
	case OpSpeakerOn:
		return protocol.ToggleSpeaker(true), nil
	case OpSpeakerOff:
		return protocol.ToggleSpeaker(false), nil
	case OpSyncTime:
		return protocol.Special{}, errors.New("time sync is encoded when it runs")
	default:
		return protocol.Special{}, fmt.Errorf("unknown special operation %d", op)
	}
}

// remember adds a job to the lookup history, dropping the oldest finished
// jobs beyond the history size. Caller must hold mu.
func (s *Sequencer) remember(job *Job) {
	s.jobs[job.ID] = job
	s.history = append(s.history, job.ID)
	for len(s.history) > s.historySize {
		idx := slices.IndexFunc(s.history, func(id uuid.UUID) bool {
			j, ok := s.jobs[id]
			return !ok || j.State().Done()
		})
		if idx < 0 {
			return
		}
		delete(s.jobs, s.history[idx])
		s.history = slices.Delete(s.history, idx, idx+1)
	}
}

// Job looks up a recent job by id.
func (s *Sequencer) Job(id uuid.UUID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Jobs returns the status of recent jobs, oldest first.
func (s *Sequencer) Jobs() []JobStatus {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.history))
	for _, id := range s.history {
		if j, ok := s.jobs[id]; ok {
			jobs = append(jobs, j)
		}
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Status())
	}
	return out
}

// QueueLength is the number of jobs waiting to run.
func (s *Sequencer) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Sequencer) Store() *store.Store {
	return s.store
}

func (s *Sequencer) emit(t EventType, job *Job) {
	if s.notify == nil {
		return
	}
	s.notify(Event{Type: t, Job: job.Status()})
}

// abortQueued finishes a job that was cancelled before it started.
func (s *Sequencer) abortQueued(job *Job) {
	if !job.state.Transition(StateQueued, StateAborted) {
		return
	}

	s.mu.Lock()
	s.queue = slices.DeleteFunc(s.queue, func(j *Job) bool { return j == job })
	s.mu.Unlock()

	job.finish(s.clock.Now(), job.abortedError(context.Canceled))
	log.Info().Str("job", job.ID.String()).Msg("cancelled queued sequence")
	s.emit(EventAborted, job)
}

func (s *Sequencer) pop() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	job := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return job
}

// Run is the worker loop. It owns the transport until ctx is cancelled,
// then aborts anything still queued and returns.
func (s *Sequencer) Run(ctx context.Context) error {
	log.Info().Str("transport", s.transport.Name()).Msg("sequencer started")

	for {
		if ctx.Err() != nil {
			s.shutdown(ctx.Err())
			return nil
		}

		job := s.pop()
		if job == nil {
			select {
			case <-ctx.Done():
				s.shutdown(ctx.Err())
				return nil
			case <-s.signal:
				continue
			}
		}

		s.runJob(ctx, job)
	}
}

func (s *Sequencer) shutdown(cause error) {
	s.mu.Lock()
	s.stopped = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, job := range pending {
		if job.state.Transition(StateQueued, StateAborted) {
			job.finish(s.clock.Now(), job.abortedError(fmt.Errorf("%w: %w", ErrStopped, cause)))
			s.emit(EventAborted, job)
		}
	}
	log.Info().Int("aborted", len(pending)).Msg("sequencer stopped")
}

func (s *Sequencer) runJob(ctx context.Context, job *Job) {
	if !job.state.Transition(StateQueued, StateRunning) {
		// cancelled while queued, already finished by abortQueued
		return
	}

	jobCtx, stop := mergeCancel(job.ctx, ctx)
	defer stop()

	job.markStarted(s.clock.Now())
	s.emit(EventStarted, job)
	logger := log.With().Str("job", job.ID.String()).Str("source", job.source).Logger()
	logger.Debug().Int("steps", len(job.steps)).Msg("running sequence")

	for i := range job.steps {
		if err := jobCtx.Err(); err != nil {
			s.abort(job, context.Cause(jobCtx))
			return
		}
		if err := s.runStep(ctx, jobCtx, &job.steps[i]); err != nil {
			logger.Error().Err(err).Int("step", i+1).Int("total", len(job.steps)).Msg("sequence step failed")
			s.abort(job, err)
			return
		}
		job.completed.Store(int32(i + 1))
	}

	if job.state.Transition(StateRunning, StateCompleted) {
		job.finish(s.clock.Now(), nil)
		logger.Debug().Msg("sequence completed")
		s.emit(EventCompleted, job)
	}
}

func (s *Sequencer) abort(job *Job, cause error) {
	if !job.state.Transition(StateRunning, StateAborted) {
		return
	}
	job.finish(s.clock.Now(), job.abortedError(cause))
	s.emit(EventAborted, job)
}

// runStep executes one step. Frames go out under the worker context so a
// job cancel never cuts a packet in half; only delays watch jobCtx.
func (s *Sequencer) runStep(ctx, jobCtx context.Context, st *step) error {
	switch st.kind {
	case stepWrite:
		if err := s.sendFrames(ctx, st.frames); err != nil {
			return err
		}
		s.store.Write(st.target, st.text)
		s.store.Write(store.Label(st.label), st.text)
		return nil
	case stepDelay:
		if st.delay == 0 {
			return nil
		}
		timer := s.clock.NewTimer(st.delay)
		defer timer.Stop()
		select {
		case <-timer.Chan():
			return nil
		case <-jobCtx.Done():
			return context.Cause(jobCtx)
		}
	case stepSpecial:
		frames := st.frames
		if st.op == OpSyncTime {
			now := s.clock.Now()
			if !helpers.IsClockReliable(now) {
				return fmt.Errorf("%w: %s", helpers.ErrClockUnreliable, now.Format(time.RFC3339))
			}
			var err error
			frames, err = s.encoder.Encode(
				protocol.SetTimeOfDay(now),
				protocol.SetDayOfWeek(now.Weekday()),
				protocol.SetTimeFormat(true),
			)
			if err != nil {
				return err
			}
		}
		if err := s.sendFrames(ctx, frames); err != nil {
			return err
		}
		if st.op == OpClearMemory {
			s.store.ResetLabels()
		}
		return nil
	default:
		return fmt.Errorf("unknown step kind %d", st.kind)
	}
}

func (s *Sequencer) sendFrames(ctx context.Context, frames []protocol.Frame) error {
	for _, f := range frames {
		if err := s.transport.Send(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// mergeCancel returns a context cancelled when either parent is, keeping
// the first parent's values.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() {
		cancel(context.Cause(b))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
