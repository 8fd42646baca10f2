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


// Package service wires the sign together: transport, store, sequencer,
// rotator and API, run until the context is cancelled.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/yorkhackspace/yhs-sign/pkg/api"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/api/notifications"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/service/broker"
	"github.com/yorkhackspace/yhs-sign/pkg/service/discovery"
	"github.com/yorkhackspace/yhs-sign/pkg/service/publishers"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/rotator"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/sequencer"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/transport"
	"golang.org/x/sync/errgroup"
)

const notificationBuffer = 100

type Options struct {
	Config *config.Instance
	Clock  clockwork.Clock
	// Transport replaces the configured serial or fake sign.
	Transport transport.Transport
	// Listener replaces listening on the configured API address.
	Listener net.Listener
	Static   afero.Fs
	DataDir  string
	// WatchConfig reloads the config file when it changes on disk.
	WatchConfig bool
}

// OpenTransport opens the configured sign, or the fake one in fake mode.
// Failing to open the serial device is fatal to the service.
func OpenTransport(cfg *config.Instance, clock clockwork.Clock) (transport.Transport, error) {
	if cfg.FakeSign() {
		log.Info().Msg("using fake sign, frames are only logged")
		return transport.NewFake(clock), nil
	}
	t, err := transport.OpenSerial(transport.SerialOptions{
		Clock:        clock,
		Device:       cfg.SignDevice(),
		BaudRate:     cfg.BaudRate(),
		WriteTimeout: cfg.WriteTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// OpenStore opens the topic database in dataDir, imports the legacy JSON
// topics file once if configured, and loads every topic.
func OpenStore(cfg *config.Instance, dataDir string) (*store.Store, error) {
	path := cfg.TopicsDataFile(dataDir)
	log.Info().Str("path", path).Msg("opening topics database")
	p, err := store.OpenBolt(path)
	if err != nil {
		return nil, err
	}

	if err := store.MigrateLegacyJSON(cfg.TopicsLegacyFile(), p); err != nil {
		log.Error().Err(err).Msg("error migrating legacy topics")
	}

	st := store.New(p)
	if err := st.Load(); err != nil {
		return nil, errors.Join(err, st.Close())
	}
	return st, nil
}

func newEncoder(cfg *config.Instance) (*protocol.Encoder, error) {
	enc, err := protocol.NewEncoder(protocol.Options{
		TypeCode:      cfg.TypeCode(),
		Address:       cfg.SignAddress(),
		FrameSize:     cfg.FrameSize(),
		MaxTextLength: cfg.MaxTextLength(),
		Transliterate: cfg.Transliterate(),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sign settings: %w", err)
	}
	return enc, nil
}

// logNotifications records every notification at debug level so the log
// file has the same view of jobs as websocket clients.
func logNotifications(ns <-chan models.Notification) {
	for n := range ns {
		ev := log.Debug().Str("method", n.Method)
		if len(n.Params) > 0 {
			ev = ev.RawJSON("params", n.Params)
		}
		ev.Msg("notification")
	}
}

// Run starts the sign service and blocks until ctx is cancelled or a
// component fails. Shutdown aborts queued jobs and closes the sign.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	log.Info().Msgf("version: %s", config.AppVersion)

	enc, err := newEncoder(cfg)
	if err != nil {
		return err
	}

	tr := opts.Transport
	if tr == nil {
		tr, err = OpenTransport(cfg, opts.Clock)
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing sign transport")
		}
	}()

	st, err := OpenStore(cfg, opts.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing topics database")
		}
	}()

	ns := make(chan models.Notification, notificationBuffer)
	notifBroker := broker.NewBroker(ns)
	apiNotifications, _ := notifBroker.Subscribe(notificationBuffer)
	logged, _ := notifBroker.Subscribe(notificationBuffer)

	seq := sequencer.New(sequencer.Options{
		Transport: tr,
		Store:     st,
		Encoder:   enc,
		Resolver:  sequencer.NewConfigResolver(cfg),
		Clock:     opts.Clock,
		QueueSize: cfg.QueueSize(),
		Notify: func(e sequencer.Event) {
			notifications.JobEvent(ns, e)
		},
	})

	deps := &api.Deps{
		Config:        cfg,
		Sequencer:     seq,
		Store:         st,
		Transport:     tr,
		Clock:         opts.Clock,
		Notifications: ns,
		Static:        opts.Static,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return notifBroker.Run(ctx) })
	g.Go(func() error {
		logNotifications(logged)
		return nil
	})
	g.Go(func() error { return seq.Run(ctx) })

	if cfg.RotateTopics() {
		rot := rotator.New(rotator.Options{
			Submitter: seq,
			Store:     st,
			Clock:     opts.Clock,
			Interval:  cfg.RotateInterval,
		})
		deps.Rotator = rot
		g.Go(func() error { return rot.Run(ctx) })
	} else {
		log.Info().Msg("topic rotation disabled")
	}

	if opts.WatchConfig {
		g.Go(func() error {
			return cfg.Watch(ctx, func() {
				log.Info().Strs("keys", cfg.TextKeys()).Msg("text keys reloaded")
			})
		})
	}

	if broker := cfg.MQTTBroker(); broker != "" {
		mqttNotifications, _ := notifBroker.Subscribe(notificationBuffer)
		bridgeOpts := publishers.Options{
			Broker: broker,
			Topic:  cfg.MQTTTopic(),
			Filter: cfg.MQTTFilter(),
		}
		if cfg.MQTTTextEnabled() {
			bridgeOpts.Submitter = seq
		}
		bridge := publishers.NewMQTTBridge(bridgeOpts)
		g.Go(func() error { return bridge.Run(ctx, mqttNotifications) })
	}

	port := cfg.APIPort()
	if opts.Listener != nil {
		if tcp, ok := opts.Listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	mdns := discovery.New(discovery.Options{Config: cfg, Clock: opts.Clock, Port: port})
	g.Go(func() error { return mdns.Run(ctx) })

	g.Go(func() error {
		if opts.Listener != nil {
			return api.Serve(ctx, opts.Listener, deps, apiNotifications)
		}
		return api.Start(ctx, deps, apiNotifications)
	})

	log.Info().Msg("sign service started")
	err = g.Wait()
	log.Info().Msg("sign service stopped")
	return err
}
