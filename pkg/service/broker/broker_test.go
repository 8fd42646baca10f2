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


package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"go.uber.org/goleak"
)

func start(t *testing.T, b *Broker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func receive(t *testing.T, ch <-chan models.Notification) models.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
		return models.Notification{}
	}
}

func TestBroker_Subscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(make(chan models.Notification))
	ch, id := b.Subscribe(10)
	assert.NotNil(t, ch)
	assert.Equal(t, 0, id)

	_, id2 := b.Subscribe(20)
	assert.Equal(t, 1, id2)
	assert.Len(t, b.subscribers, 2)
}

func TestBroker_Unsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(make(chan models.Notification))
	ch, id := b.Subscribe(10)

	b.Unsubscribe(id)
	assert.Empty(t, b.subscribers)
	_, ok := <-ch
	assert.False(t, ok)

	// second call is a no-op
	b.Unsubscribe(id)
}

func TestBroker_BroadcastToEverySubscriber(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification)
	b := NewBroker(source)
	api, _ := b.Subscribe(10)
	logs, _ := b.Subscribe(10)
	start(t, b)

	source <- models.Notification{Method: models.NotificationTopicUpdated}

	assert.Equal(t, models.NotificationTopicUpdated, receive(t, api).Method)
	assert.Equal(t, models.NotificationTopicUpdated, receive(t, logs).Method)
}

func TestBroker_FullSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification)
	b := NewBroker(source)
	slow, _ := b.Subscribe(1)
	fast, _ := b.Subscribe(10)
	start(t, b)

	for i := range 5 {
		source <- models.Notification{Method: fmt.Sprintf("job.%d", i)}
	}

	for i := range 5 {
		assert.Equal(t, fmt.Sprintf("job.%d", i), receive(t, fast).Method)
	}
	assert.Equal(t, "job.0", receive(t, slow).Method)
	assert.Empty(t, slow)
}

func TestBroker_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroker(make(chan models.Notification))
	ch, _ := b.Subscribe(1)
	cancel, done := start(t, b)

	cancel()
	require.NoError(t, <-done)
	_, ok := <-ch
	assert.False(t, ok, "subscriber channel should be closed")
}

func TestBroker_StopsWhenSourceCloses(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification)
	b := NewBroker(source)
	ch, _ := b.Subscribe(1)
	_, done := start(t, b)

	close(source)
	require.NoError(t, <-done)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroker_ConcurrentSubscribe(t *testing.T) {
	t.Parallel()

	source := make(chan models.Notification, 100)
	b := NewBroker(source)
	start(t, b)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, id := b.Subscribe(5)
			source <- models.Notification{Method: models.NotificationJobQueued}
			b.Unsubscribe(id)
		}()
	}
	wg.Wait()
}
