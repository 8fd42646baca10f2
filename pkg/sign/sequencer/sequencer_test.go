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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
	"go.uber.org/goleak"
)

type testEnv struct {
	seq    *Sequencer
	fake   *transport.Fake
	store  *store.Store
	clock  *clockwork.FakeClock
	events chan Event
	cancel context.CancelFunc
	done   chan error
}

func newTestEnv(t *testing.T, queueSize int) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC))
	fake := transport.NewFake(clock)
	st := store.New(nil)

	cfg := &config.Instance{}
	cfg.SetTextKeys([]string{"test", "lulzbot", "anycubic"})

	enc, err := protocol.NewEncoder(protocol.Options{FrameSize: 16, Transliterate: true})
	require.NoError(t, err)

	events := make(chan Event, 256)
	seq := New(Options{
		Transport: fake,
		Store:     st,
		Encoder:   enc,
		Resolver:  NewConfigResolver(cfg),
		Clock:     clock,
		QueueSize: queueSize,
		Notify: func(e Event) {
			select {
			case events <- e:
			default:
			}
		},
	})

	env := &testEnv{
		seq:    seq,
		fake:   fake,
		store:  st,
		clock:  clock,
		events: events,
		done:   make(chan error, 1),
	}
	return env
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go func() { e.done <- e.seq.Run(ctx) }()
	t.Cleanup(e.stop)
}

func (e *testEnv) stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

func waitJob(t *testing.T, job *Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return job.Wait(ctx)
}

// writtenTexts decodes every packet the fake received into its text writes.
func writtenTexts(t *testing.T, fake *transport.Fake) []string {
	t.Helper()
	packets, err := fake.Packets()
	require.NoError(t, err)
	var out []string
	for _, p := range packets {
		for _, c := range p.Commands {
			if w, ok := c.WriteText(); ok {
				out = append(out, w.Text)
			}
		}
	}
	return out
}

func TestSubmit_WriteText(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	job, err := env.seq.Submit(context.Background(), Write("test", store.TextKey("test"), "hello"))
	require.NoError(t, err)
	require.NoError(t, waitJob(t, job))

	assert.Equal(t, StateCompleted, job.State())
	assert.Equal(t, []string{"hello"}, writtenTexts(t, env.fake))

	text, ok := env.store.Read(store.TextKey("test"))
	require.True(t, ok)
	assert.Equal(t, "hello", text)
	text, _ = env.store.Read(store.Label('A'))
	assert.Equal(t, "hello", text)

	st := job.Status()
	assert.Equal(t, "completed", st.State)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Total)
	assert.NotNil(t, st.FinishedAt)
}

func TestSubmit_UnknownTopicSendsNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	_, err := env.seq.Submit(context.Background(), Write("test", store.TextKey("unknown-topic"), "x"))
	require.ErrorIs(t, err, ErrUnknownTopic)

	_, err = env.seq.Submit(context.Background(), Write("test", store.TextKey("lulzbt"), "x"))
	var topicErr *UnknownTopicError
	require.ErrorAs(t, err, &topicErr)
	assert.Equal(t, "lulzbot", topicErr.Suggestion)

	assert.Equal(t, 0, env.seq.QueueLength())
	assert.Empty(t, env.fake.Records())
}

func TestSubmit_EncodingErrorSendsNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	seq := Sequence{Commands: []Command{
		WriteText{Target: store.TextKey("test"), Text: "fine"},
		Delay{Duration: time.Second},
		WriteText{Target: store.TextKey("test"), Text: "bad \x01"},
	}}
	_, err := env.seq.Submit(context.Background(), seq)
	require.ErrorIs(t, err, protocol.ErrUnsupportedChar)
	assert.Contains(t, err.Error(), "step 3")
	assert.Empty(t, env.fake.Records())
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)

	tests := []struct {
		wantErr error
		name    string
		seq     Sequence
	}{
		{name: "empty", seq: Sequence{}, wantErr: ErrEmptySequence},
		{name: "negative delay", seq: Sequence{Commands: []Command{Delay{Duration: -time.Second}}}, wantErr: ErrInvalidDelay},
		{name: "huge delay", seq: Sequence{Commands: []Command{Delay{Duration: time.Hour}}}, wantErr: ErrInvalidDelay},
		{
			name:    "bad label",
			seq:     Write("x", store.Target{Kind: store.KindLabel, Name: "?"}, "x"),
			wantErr: protocol.ErrInvalidLabel,
		},
		{
			name:    "empty topic",
			seq:     Write("x", store.Topic(""), "x"),
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "too long",
			seq:     Write("x", store.TextKey("test"), string(make([]byte, 300))),
			wantErr: protocol.ErrTextTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := env.seq.Submit(context.Background(), tt.seq)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	// worker not started, so nothing drains the queue
	for range 2 {
		_, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "a"))
		require.NoError(t, err)
	}
	_, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "a"))
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestDelay_UsesClock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	seq := Sequence{Commands: []Command{
		WriteText{Target: store.TextKey("test"), Text: "first"},
		Delay{Duration: 2 * time.Second},
		WriteText{Target: store.TextKey("test"), Text: "second"},
	}}
	job, err := env.seq.Submit(context.Background(), seq)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, []string{"first"}, writtenTexts(t, env.fake))

	env.clock.Advance(2 * time.Second)
	require.NoError(t, waitJob(t, job))

	records := env.fake.Records()
	require.NotEmpty(t, records)
	first, last := records[0].At, records[len(records)-1].At
	assert.GreaterOrEqual(t, last.Sub(first), 2*time.Second)
	assert.Equal(t, []string{"first", "second"}, writtenTexts(t, env.fake))
}

func TestDelay_OtherSubmissionsQueue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	slow, err := env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		WriteText{Target: store.TextKey("test"), Text: "a"},
		Delay{Duration: time.Minute},
		WriteText{Target: store.TextKey("test"), Text: "b"},
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	// accepted while the first job is waiting
	fast, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("lulzbot"), "c"))
	require.NoError(t, err)
	assert.Equal(t, StateQueued, fast.State())
	assert.Equal(t, StateRunning, slow.State())

	env.clock.Advance(time.Minute)
	require.NoError(t, waitJob(t, slow))
	require.NoError(t, waitJob(t, fast))
	assert.Equal(t, []string{"a", "b", "c"}, writtenTexts(t, env.fake))
}

func TestConcurrentSequencesDoNotInterleave(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 128)
	env.start(t)

	const workers = 8
	var wg sync.WaitGroup
	jobs := make(chan *Job, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// long enough to split into several frames each
			seq := Sequence{Commands: []Command{
				WriteText{Target: store.TextKey("test"), Text: fmt.Sprintf("job %d first line of text", i)},
				WriteText{Target: store.TextKey("test"), Text: fmt.Sprintf("job %d second line of text", i)},
			}}
			job, err := env.seq.Submit(context.Background(), seq)
			if !assert.NoError(t, err) {
				return
			}
			jobs <- job
		}()
	}
	wg.Wait()
	close(jobs)
	for job := range jobs {
		require.NoError(t, waitJob(t, job))
	}

	texts := writtenTexts(t, env.fake)
	require.Len(t, texts, workers*2)
	for i := 0; i < len(texts); i += 2 {
		var n int
		_, err := fmt.Sscanf(texts[i], "job %d first", &n)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("job %d second line of text", n), texts[i+1])
	}
}

func TestTransportFailureAbortsRemainingSteps(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	var sends int
	var mu sync.Mutex
	env.fake.SetSendHook(func(f protocol.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		sends++
		if len(f) > 0 && f[len(f)-1] == protocol.EOT && sends > 2 {
			return transport.ErrWriteFailed
		}
		return nil
	})

	job, err := env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		WriteText{Target: store.TextKey("test"), Text: "ok"},
		WriteText{Target: store.TextKey("lulzbot"), Text: "fails"},
		WriteText{Target: store.TextKey("anycubic"), Text: "never"},
	}})
	require.NoError(t, err)

	err = waitJob(t, job)
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	require.ErrorIs(t, err, transport.ErrWriteFailed)
	assert.Equal(t, 1, aborted.Completed)
	assert.Equal(t, 3, aborted.Total)
	assert.Equal(t, job.ID, aborted.JobID)
	assert.Equal(t, StateAborted, job.State())

	// only the completed step reached the store
	text, _ := env.store.Read(store.TextKey("test"))
	assert.Equal(t, "ok", text)
	_, ok := env.store.Read(store.TextKey("lulzbot"))
	assert.False(t, ok)
	_, ok = env.store.Read(store.TextKey("anycubic"))
	assert.False(t, ok)

	// the worker keeps going for later jobs
	env.fake.SetSendHook(nil)
	next, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("anycubic"), "later"))
	require.NoError(t, err)
	require.NoError(t, waitJob(t, next))
}

func TestCancelRunningJobDuringDelay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	job, err := env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		WriteText{Target: store.TextKey("test"), Text: "a"},
		Delay{Duration: time.Minute},
		WriteText{Target: store.TextKey("test"), Text: "b"},
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	job.Cancel()
	err = waitJob(t, job)
	require.ErrorIs(t, err, context.Canceled)
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, 1, aborted.Completed)
	assert.Equal(t, []string{"a"}, writtenTexts(t, env.fake))
}

func TestCancelQueuedJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	// not started: jobs stay queued
	job, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "a"))
	require.NoError(t, err)

	job.Cancel()
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled queued job did not finish")
	}
	assert.Equal(t, StateAborted, job.State())
	require.ErrorIs(t, job.Err(), context.Canceled)
	assert.Equal(t, 0, env.seq.QueueLength())

	env.start(t)
	next, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "b"))
	require.NoError(t, err)
	require.NoError(t, waitJob(t, next))
	assert.Equal(t, []string{"b"}, writtenTexts(t, env.fake))
}

func TestSpecials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	job, err := env.seq.Submit(context.Background(), Write("x", store.Label('B'), "cached"))
	require.NoError(t, err)
	require.NoError(t, waitJob(t, job))

	job, err = env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		Special{Op: OpBeep},
		Special{Op: OpSyncTime},
		Special{Op: OpClearMemory},
	}})
	require.NoError(t, err)
	require.NoError(t, waitJob(t, job))

	_, ok := env.store.Read(store.Label('B'))
	assert.False(t, ok)

	packets, err := env.fake.Packets()
	require.NoError(t, err)
	require.Len(t, packets, 4)
	assert.Equal(t, "(0", string(packets[1].Commands[0].Data))
	require.Len(t, packets[2].Commands, 3)
	now := env.clock.Now()
	assert.Equal(t, fmt.Sprintf(" %02d%02d", now.Hour(), now.Minute()), string(packets[2].Commands[0].Data))
	assert.Equal(t, "$$$$", string(packets[3].Commands[0].Data))
}

func TestSyncTime_UnreliableClock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.clock = clockwork.NewFakeClockAt(time.Unix(0, 0).UTC())
	env.seq.clock = env.clock
	env.start(t)

	job, err := env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		Special{Op: OpBeep},
		Special{Op: OpSyncTime},
	}})
	require.NoError(t, err)

	err = waitJob(t, job)
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	require.ErrorIs(t, err, helpers.ErrClockUnreliable)
	assert.Equal(t, 1, aborted.Completed)

	packets, err := env.fake.Packets()
	require.NoError(t, err)
	assert.Len(t, packets, 1)
}

func TestJobLookupAndEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.start(t)

	job, err := env.seq.Submit(context.Background(), Write("api", store.TextKey("test"), "x"))
	require.NoError(t, err)
	require.NoError(t, waitJob(t, job))

	found, ok := env.seq.Job(job.ID)
	require.True(t, ok)
	assert.Same(t, job, found)
	require.Len(t, env.seq.Jobs(), 1)
	assert.Equal(t, "api", env.seq.Jobs()[0].Source)

	var types []EventType
	for len(types) < 3 {
		select {
		case e := <-env.events:
			assert.Equal(t, job.ID.String(), e.Job.ID)
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.ElementsMatch(t, []EventType{EventQueued, EventStarted, EventCompleted}, types)
}

func TestQueuedIsFirstEventForEveryJob(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC))
	cfg := &config.Instance{}
	cfg.SetTextKeys([]string{"test"})
	enc, err := protocol.NewEncoder(protocol.Options{FrameSize: 16})
	require.NoError(t, err)

	var mu sync.Mutex
	first := make(map[string]EventType)
	seq := New(Options{
		Transport:   transport.NewFake(clock),
		Encoder:     enc,
		Resolver:    NewConfigResolver(cfg),
		Clock:       clock,
		HistorySize: 8,
		Notify: func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := first[e.Job.ID]; !ok {
				first[e.Job.ID] = e.Type
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	const jobs = 500
	for range jobs {
		job, err := seq.Submit(context.Background(), Write("test", store.TextKey("test"), "x"))
		require.NoError(t, err)
		require.NoError(t, waitJob(t, job))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, first, jobs)
	for id, typ := range first {
		assert.Equal(t, EventQueued, typ, "job %s", id)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.seq.historySize = 3
	env.start(t)

	var last *Job
	for range 5 {
		job, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "x"))
		require.NoError(t, err)
		require.NoError(t, waitJob(t, job))
		last = job
	}
	assert.Len(t, env.seq.Jobs(), 3)
	_, ok := env.seq.Job(last.ID)
	assert.True(t, ok)
}

func TestShutdownAbortsQueuedAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newTestEnv(t, 0)
	env.start(t)

	running, err := env.seq.Submit(context.Background(), Sequence{Commands: []Command{
		Delay{Duration: time.Minute},
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	queued, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "x"))
	require.NoError(t, err)

	env.stop()

	require.ErrorIs(t, waitJob(t, running), context.Canceled)
	require.ErrorIs(t, waitJob(t, queued), ErrStopped)

	_, err = env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "x"))
	require.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, env.fake.Records())
}

func TestJobWaitContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	job, err := env.seq.Submit(context.Background(), Write("x", store.TextKey("test"), "x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = job.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, new(*AbortedError)))
	assert.Equal(t, StateQueued, job.State())
}
