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


package service

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yorkhackspace/yhs-sign/pkg/api/client"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
	"go.uber.org/goleak"
)

func writeConfig(t *testing.T, dir, body string) *config.Instance {
	t.Helper()
	path := filepath.Join(dir, config.CfgFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.NewConfigAt(path, config.BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func TestOpenTransport_MissingDevice(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, t.TempDir(), `
config_schema = 1
[sign]
device = "/dev/does-not-exist-yhs"
`)
	_, err := OpenTransport(cfg, clockwork.NewRealClock())
	require.ErrorIs(t, err, transport.ErrOpenFailed)
}

func TestOpenTransport_Fake(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, t.TempDir(), `
config_schema = 1
[sign]
fake = true
`)
	tr, err := OpenTransport(cfg, clockwork.NewRealClock())
	require.NoError(t, err)
	assert.IsType(t, &transport.Fake{}, tr)
	require.NoError(t, tr.Close())
}

func TestOpenStore_MigratesLegacyTopics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	legacy := filepath.Join(dir, "topics.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"laser":["Laser free"],"__PLACEHOLDER":["x"]}`), 0o600))

	cfg := writeConfig(t, dir, `
config_schema = 1
[topics]
legacy_file = "`+filepath.ToSlash(legacy)+`"
`)

	st, err := OpenStore(cfg, dir)
	require.NoError(t, err)

	lines, ok := st.Lines("laser")
	require.True(t, ok)
	assert.Equal(t, []string{"Laser free"}, lines)
	_, ok = st.Lines(store.TutorialTopic)
	assert.True(t, ok, "tutorial topic is seeded")
	require.NoError(t, st.Close())

	_, err = os.Stat(legacy)
	assert.True(t, os.IsNotExist(err), "legacy file is only imported once")

	// topics survive a restart
	st, err = OpenStore(cfg, dir)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	lines, ok = st.Lines("laser")
	require.True(t, ok)
	assert.Equal(t, []string{"Laser free"}, lines)
}

func TestRun_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
config_schema = 1
[text]
keys = ["test", "lulzbot"]
[topics]
rotate = true
rotate_interval = "1m"
`)

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fake := transport.NewFake(clockwork.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Config:    cfg,
			Transport: fake,
			Listener:  ln,
			DataDir:   dir,
		})
	}()

	c, err := client.New("http://" + ln.Addr().String())
	require.NoError(t, err)

	job, err := c.PutTopic(ctx, "test", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "completed", job.State)

	// the rotator jumps to the topic without redrawing its first line
	text, err := c.Text(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, "b", text)
	assert.Eventually(t, func() bool {
		h, err := c.Health(ctx)
		return err == nil && h.Topic == "test"
	}, 5*time.Second, 10*time.Millisecond)

	_, err = c.PutText(ctx, "unknown-topic", "x")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Transport.Fake)
	assert.Positive(t, health.Transport.FramesSent)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	c.CloseIdleConnections()

	// the PUT was persisted
	st, err := OpenStore(cfg, dir)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	lines, ok := st.Lines("test")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, lines)
}
