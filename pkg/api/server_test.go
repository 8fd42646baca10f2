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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
)

type testServer struct {
	handler       http.Handler
	fake          *transport.Fake
	store         *store.Store
	seq           *sequencer.Sequencer
	clock         *clockwork.FakeClock
	notifications chan models.Notification
	rotator       *fakeRotator
}

type fakeRotator struct {
	jumped  chan string
	deleted chan string
}

func (r *fakeRotator) Jump(topic string)    { r.jumped <- topic }
func (r *fakeRotator) Deleted(topic string) { r.deleted <- topic }
func (*fakeRotator) Current() (string, int) { return "test", 1 }

func newTestServer(t *testing.T, static afero.Fs) *testServer {
	t.Helper()

	cfg := &config.Instance{}
	cfg.SetTextKeys([]string{"test", "lulzbot", "anycubic"})

	clock := clockwork.NewFakeClock()
	fake := transport.NewFake(clock)
	st := store.New(nil)
	enc, err := protocol.NewEncoder(protocol.Options{FrameSize: 16, Transliterate: true})
	require.NoError(t, err)

	seq := sequencer.New(sequencer.Options{
		Transport: fake,
		Store:     st,
		Encoder:   enc,
		Resolver:  sequencer.NewConfigResolver(cfg),
		Clock:     clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = seq.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ts := &testServer{
		fake:          fake,
		store:         st,
		seq:           seq,
		clock:         clock,
		notifications: make(chan models.Notification, 64),
		rotator: &fakeRotator{
			jumped:  make(chan string, 8),
			deleted: make(chan string, 8),
		},
	}
	ts.handler = NewRouter(ctx, &Deps{
		Config:        cfg,
		Sequencer:     seq,
		Store:         st,
		Transport:     fake,
		Rotator:       ts.rotator,
		// rate limiter cleanup must not count as a fake clock blocker
		Clock:         clockwork.NewRealClock(),
		Notifications: ts.notifications,
		Static:        static,
	}, newMelody())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPutTopic_ThenGetTextReturnsLastLine(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/topics/test", `{"lines":["a","b"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.JobResponse](t, rec)
	assert.Equal(t, "completed", resp.Job.State)
	assert.Equal(t, 2, resp.Job.Completed)

	rec = ts.do(t, http.MethodGet, "/text/get/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", decode[models.TextResponse](t, rec).Text)

	rec = ts.do(t, http.MethodGet, "/topics/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b"}, decode[models.TopicResponse](t, rec).Lines)

	rec = ts.do(t, http.MethodGet, "/topics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	topics := decode[models.TopicsResponse](t, rec)
	assert.Equal(t, []string{"a", "b"}, topics.Topics["test"])
	assert.Contains(t, topics.Order, "test")

	select {
	case name := <-ts.rotator.jumped:
		assert.Equal(t, "test", name)
	default:
		t.Fatal("rotator was not told about the updated topic")
	}

	var methods []string
	for len(ts.notifications) > 0 {
		methods = append(methods, (<-ts.notifications).Method)
	}
	assert.Contains(t, methods, models.NotificationTopicUpdated)
}

func TestPutText_UnknownKeySendsNothing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/text/unknown-topic", `{"text":"hello"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, models.StageValidation, resp.Error.Stage)
	assert.Contains(t, resp.Error.Message, "unknown-topic")
	assert.Empty(t, ts.fake.Frames())
}

func TestPutText_SuggestsClosestKey(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/text/lulzbt", `{"text":"hello"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "lulzbot", decode[models.ErrorResponse](t, rec).Error.Suggestion)
}

func TestPutText_Writes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/text/lulzbot", `{"text":"Print done","mode":"hold","position":"fill"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[models.JobResponse](t, rec).Job.State)
	assert.NotEmpty(t, ts.fake.Frames())

	rec = ts.do(t, http.MethodGet, "/text/get/lulzbot", "")
	assert.Equal(t, "Print done", decode[models.TextResponse](t, rec).Text)
}

func TestPutText_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		stage string
	}{
		{name: "empty body", body: "", stage: models.StageValidation},
		{name: "not json", body: "{", stage: models.StageValidation},
		{name: "missing text", body: `{"mode":"hold"}`, stage: models.StageValidation},
		{name: "unknown mode", body: `{"text":"x","mode":"sideways"}`, stage: models.StageValidation},
		{name: "unknown position", body: `{"text":"x","position":"under"}`, stage: models.StageValidation},
		{name: "control character", body: `{"text":"bad\tline"}`, stage: models.StageEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPut, "/text/test", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.stage, decode[models.ErrorResponse](t, rec).Error.Stage)
			assert.Empty(t, ts.fake.Frames())
		})
	}
}

func TestGetText_Unset(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/text/get/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":""}`, rec.Body.String())
}

func TestPutTopic_Rejected(t *testing.T) {
	t.Parallel()

	tooMany := make([]string, 17)
	for i := range tooMany {
		tooMany[i] = "line"
	}
	manyJSON, err := json.Marshal(map[string]any{"lines": tooMany})
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		body  string
		stage string
	}{
		{name: "reserved name", path: "/topics/__TUTORIAL", body: `{"lines":["a"]}`, stage: models.StageValidation},
		{name: "label name", path: "/topics/n", body: `{"lines":["a"]}`, stage: models.StageValidation},
		{name: "no lines", path: "/topics/news", body: `{"lines":[]}`, stage: models.StageValidation},
		{name: "too many lines", path: "/topics/news", body: string(manyJSON), stage: models.StageValidation},
		{
			name:  "line too long",
			path:  "/topics/news",
			body:  `{"lines":["` + strings.Repeat("x", 61) + `"]}`,
			stage: models.StageValidation,
		},
		{name: "bad delay", path: "/topics/news", body: `{"lines":["a"],"delay":"soon"}`, stage: models.StageValidation},
		{name: "unencodable line", path: "/topics/news", body: `{"lines":["ok","bad\tline"]}`, stage: models.StageEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPut, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.stage, decode[models.ErrorResponse](t, rec).Error.Stage)
			assert.Empty(t, ts.fake.Frames())

			_, ok := ts.store.Lines(strings.TrimPrefix(tt.path, "/topics/"))
			assert.False(t, ok, "rejected topic must not be stored")
		})
	}
}

func TestPutTopic_NoWait(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/topics/news?wait=false", `{"lines":["one","two"],"delay":"2s"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[models.JobAccepted](t, rec)
	require.NotEmpty(t, accepted.Job.ID)
	assert.Equal(t, 3, accepted.Job.Total)

	// lines are stored as soon as the job is accepted
	lines, ok := ts.store.Lines("news")
	require.True(t, ok)
	assert.Equal(t, []string{"one", "two"}, lines)

	require.NoError(t, ts.clock.BlockUntilContext(context.Background(), 1))
	ts.clock.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/jobs/"+accepted.Job.ID, "")
		return rec.Code == http.StatusOK &&
			decode[models.JobResponse](t, rec).Job.State == "completed"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/topics/news?wait=false", `{"lines":["one","two"],"delay":"5m"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[models.JobAccepted](t, rec).Job.ID

	// the job is parked in its delay
	require.NoError(t, ts.clock.BlockUntilContext(context.Background(), 1))

	rec = ts.do(t, http.MethodDelete, "/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/jobs/"+id, "")
		job := decode[models.JobResponse](t, rec).Job
		return job.State == "aborted" && job.Completed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJobs_Lookup(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/jobs/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/text/test", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[models.JobResponse](t, rec).Job.ID

	rec = ts.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[models.JobsResponse](t, rec).Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestDeleteTopic(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/topics/news", `{"lines":["a"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/topics/news", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "news", <-ts.rotator.deleted)

	rec = ts.do(t, http.MethodGet, "/topics/news", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/topics/news", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/topics/__TUTORIAL", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostScript(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/script",
		`{"language":"zapscript","key":"test","script":"hello||**beep||**write:world?label=B"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[models.JobResponse](t, rec).Job
	assert.Equal(t, "completed", job.State)
	assert.Equal(t, 3, job.Total)

	rec = ts.do(t, http.MethodGet, "/text/get/test", "")
	assert.Equal(t, "hello", decode[models.TextResponse](t, rec).Text)
	rec = ts.do(t, http.MethodGet, "/text/get/B", "")
	assert.Equal(t, "world", decode[models.TextResponse](t, rec).Text)
}

func TestPostScript_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
		stage  string
	}{
		{
			name:   "unsupported language",
			body:   `{"language":"lua","script":"print(1)"}`,
			status: http.StatusBadRequest,
			stage:  models.StageScript,
		},
		{
			name:   "unknown command",
			body:   `{"language":"zapscript","key":"test","script":"**explode"}`,
			status: http.StatusBadRequest,
			stage:  models.StageScript,
		},
		{
			name:   "missing script",
			body:   `{"language":"zapscript"}`,
			status: http.StatusBadRequest,
			stage:  models.StageValidation,
		},
		{
			name:   "unknown key",
			body:   `{"language":"zapscript","key":"nope","script":"hello"}`,
			status: http.StatusNotFound,
			stage:  models.StageValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPost, "/script", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.stage, decode[models.ErrorResponse](t, rec).Error.Stage)
			assert.Empty(t, ts.fake.Frames())
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[models.HealthResponse](t, rec)
	assert.Equal(t, config.AppVersion, health.Version)
	assert.True(t, health.Transport.Fake)
	assert.True(t, health.Transport.Connected)
	assert.Equal(t, "test", health.Topic)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")
}

func TestHelpPage(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/help", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "York Hackspace")
}

func TestStaticFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/index.html", []byte("<!DOCTYPE html><p>sign</p>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app.js", []byte("console.log('sign');"), 0o644))
	ts := newTestServer(t, fs)

	rec := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<p>sign</p>")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = ts.do(t, http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = ts.do(t, http.MethodGet, "/missing.css", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrivateNetworkAccessMiddleware(t *testing.T) {
	t.Parallel()

	handler := privateNetworkAccessMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		header string
		expect bool
	}{
		{name: "OPTIONS_with_PNA_request_header", method: http.MethodOptions, header: "true", expect: true},
		{name: "OPTIONS_without_PNA_request_header", method: http.MethodOptions},
		{name: "GET_with_PNA_request_header", method: http.MethodGet, header: "true"},
		{name: "OPTIONS_with_PNA_false", method: http.MethodOptions, header: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/topics", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Access-Control-Request-Private-Network", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.expect {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Private-Network"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Private-Network"))
			}
		})
	}
}
