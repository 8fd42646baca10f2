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


// Package client talks to a running sign service over HTTP and its
// notification websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrRequestCancelled = errors.New("request cancelled")
	ErrInvalidURL       = errors.New("invalid service url")
)

const NotificationsPath = "/notifications"

// APIError is a non-2xx response from the service.
type APIError struct {
	models.ErrorObject
	Status int
}

func (e *APIError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%d %s: %s (did you mean %q?)", e.Status, e.Stage, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Stage, e.Message)
}

type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the service at baseURL, e.g.
// "http://big-sign.yhs:8080".
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", ErrInvalidURL, baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host: %q", ErrInvalidURL, baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: config.APIRequestTimeout + 5*time.Second},
	}, nil
}

// NewLocal returns a client for the service running on this machine.
func NewLocal(cfg *config.Instance) *Client {
	return &Client{
		base: &url.URL{Scheme: "http", Host: "localhost:" + strconv.Itoa(cfg.APIPort())},
		http: &http.Client{Timeout: config.APIRequestTimeout + 5*time.Second},
	}
}

// CloseIdleConnections releases kept-alive connections to the service.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrRequestCancelled, ctx.Err())
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var er models.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
			apiErr.ErrorObject = er.Error
		} else {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) Topics(ctx context.Context) (models.TopicsResponse, error) {
	var resp models.TopicsResponse
	err := c.do(ctx, http.MethodGet, "/topics", nil, &resp)
	return resp, err
}

func (c *Client) Topic(ctx context.Context, name string) ([]string, error) {
	var resp models.TopicResponse
	err := c.do(ctx, http.MethodGet, "/topics/"+url.PathEscape(name), nil, &resp)
	return resp.Lines, err
}

func (c *Client) PutTopic(ctx context.Context, name string, lines []string) (sequencer.JobStatus, error) {
	var resp models.JobResponse
	err := c.do(ctx, http.MethodPut, "/topics/"+url.PathEscape(name), models.PutTopicRequest{Lines: lines}, &resp)
	return resp.Job, err
}

func (c *Client) DeleteTopic(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/topics/"+url.PathEscape(name), nil, nil)
}

func (c *Client) PutText(ctx context.Context, key, text string) (sequencer.JobStatus, error) {
	var resp models.JobResponse
	err := c.do(ctx, http.MethodPut, "/text/"+url.PathEscape(key), models.PutTextRequest{Text: &text}, &resp)
	return resp.Job, err
}

func (c *Client) Text(ctx context.Context, label string) (string, error) {
	var resp models.TextResponse
	err := c.do(ctx, http.MethodGet, "/text/get/"+url.PathEscape(label), nil, &resp)
	return resp.Text, err
}

func (c *Client) RunScript(ctx context.Context, req models.PostScriptRequest) (sequencer.JobStatus, error) {
	var resp models.JobResponse
	err := c.do(ctx, http.MethodPost, "/script", req, &resp)
	return resp.Job, err
}

func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var resp models.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func (c *Client) dialNotifications(ctx context.Context) (*websocket.Conn, error) {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = NotificationsPath

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialling %s: %w", u.String(), err)
	}
	return conn, nil
}

// Watch calls fn for every notification until ctx is done or the
// connection drops.
func (c *Client) Watch(ctx context.Context, fn func(models.NotificationObject)) error {
	conn, err := c.dialNotifications(ctx)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing websocket")
		}
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading notification: %w", err)
		}

		var n models.NotificationObject
		if err := json.Unmarshal(message, &n); err != nil || n.JSONRPC != "2.0" {
			log.Debug().Str("message", string(message)).Msg("ignoring websocket message")
			continue
		}
		fn(n)
	}
}

// WaitNotification blocks until a notification with the given method
// arrives and returns its params. A zero timeout uses the default request
// timeout, a negative one waits until ctx is done.
func (c *Client) WaitNotification(
	ctx context.Context,
	timeout time.Duration,
	method string,
) (json.RawMessage, error) {
	switch {
	case timeout == 0:
		timeout = config.APIRequestTimeout
	case timeout < 0:
		timeout = 0
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		waitCtx, cancelTimeout = context.WithTimeout(waitCtx, timeout)
		defer cancelTimeout()
	}

	var params json.RawMessage
	found := false
	err := c.Watch(waitCtx, func(n models.NotificationObject) {
		if found || n.Method != method {
			return
		}
		params = n.Params
		found = true
		cancel()
	})
	if err != nil {
		return nil, err
	}
	if found {
		return params, nil
	}
	if ctx.Err() != nil {
		return nil, ErrRequestCancelled
	}
	return nil, ErrRequestTimeout
}
