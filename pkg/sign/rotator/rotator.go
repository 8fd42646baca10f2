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

// Package rotator cycles topic lines onto the sign, one line per interval.
package rotator

import (
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

const Source = "rotator"

const DefaultInterval = 15 * time.Second

const eventBuffer = 16

type Submitter interface {
	Submit(ctx context.Context, seq sequencer.Sequence) (*sequencer.Job, error)
}

type Options struct {
	Submitter Submitter
	Store     *store.Store
	Clock     clockwork.Clock
	// Interval is read before every wait so config reloads apply.
	Interval func() time.Duration
}

type eventKind int

const (
	eventJump eventKind = iota
	eventDeleted
)

type event struct {
	topic string
	kind  eventKind
}

type Rotator struct {
	submitter Submitter
	store     *store.Store
	clock     clockwork.Clock
	interval  func() time.Duration
	events    chan event
	lastDraw  time.Time
	topic     string
	pending   []string
	mu        syncutil.Mutex
}

func New(opts Options) *Rotator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval == nil {
		opts.Interval = func() time.Duration { return DefaultInterval }
	}
	return &Rotator{
		submitter: opts.Submitter,
		store:     opts.Store,
		clock:     opts.Clock,
		interval:  opts.Interval,
		events:    make(chan event, eventBuffer),
	}
}

// Jump switches to topic after an update has shown its lines. The last
// line stays up for a full interval before the topic starts cycling.
func (r *Rotator) Jump(topic string) {
	r.send(event{kind: eventJump, topic: topic})
}

// Deleted moves off topic if it is currently showing.
func (r *Rotator) Deleted(topic string) {
	r.send(event{kind: eventDeleted, topic: topic})
}

func (r *Rotator) send(e event) {
	select {
	case r.events <- e:
	default:
		log.Warn().Str("topic", e.topic).Msg("rotator busy, dropping topic event")
	}
}

// Current returns the topic being shown and how many of its lines are
// still to come.
func (r *Rotator) Current() (topic string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic, len(r.pending)
}

func (r *Rotator) Run(ctx context.Context) error {
	r.advance("")
	log.Info().Str("topic", r.currentTopic()).Msg("topic rotation started")

	for {
		wait := r.interval() - r.clock.Since(r.lastDraw)
		if wait <= 0 {
			r.draw(ctx)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		timer := r.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		case e := <-r.events:
			timer.Stop()
			if r.handle(e) {
				r.lastDraw = time.Time{}
			}
		}
	}
}

// handle applies an event and reports whether the sign should be redrawn
// now.
func (r *Rotator) handle(e event) bool {
	switch e.kind {
	case eventJump:
		lines, ok := r.store.Lines(e.topic)
		if !ok {
			log.Warn().Str("topic", e.topic).Msg("cannot jump to missing topic")
			return false
		}
		r.set(e.topic, lines)
		r.lastDraw = r.clock.Now()
		log.Debug().Str("topic", e.topic).Msg("jumped to topic")
		return false
	case eventDeleted:
		if r.currentTopic() != e.topic {
			return false
		}
		r.advance("")
		return true
	default:
		return false
	}
}

func (r *Rotator) currentTopic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic
}

func (r *Rotator) set(topic string, lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = topic
	r.pending = slices.Clone(lines)
}

func (r *Rotator) advance(after string) {
	r.set(r.store.Next(after))
}

func (r *Rotator) nextLine() (topic, line string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return r.topic, "", false
	}
	line = r.pending[0]
	r.pending = r.pending[1:]
	return r.topic, line, true
}

// draw shows the next line and waits for it to reach the sign, then moves
// to the next topic once the current one is used up.
func (r *Rotator) draw(ctx context.Context) {
	defer func() { r.lastDraw = r.clock.Now() }()

	topic, line, ok := r.nextLine()
	if !ok {
		r.advance(topic)
		if topic, line, ok = r.nextLine(); !ok {
			return
		}
	}

	job, err := r.submitter.Submit(ctx, sequencer.Write(Source, store.Topic(topic), line))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to queue topic line")
	} else if err := job.Wait(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to show topic line")
	}

	if _, remaining := r.Current(); remaining == 0 {
		r.advance(topic)
	}
}
