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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/internal/telemetry"
	"github.com/yorkhackspace/yhs-sign/pkg/cli"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers"
	"github.com/yorkhackspace/yhs-sign/pkg/service"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		telemetry.Flush()
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(nil)
	if err := flags.Pre(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, cli.ErrDone) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flags.Post(ctx, os.Stdout); err != nil {
		if errors.Is(err, cli.ErrDone) {
			return nil
		}
		return err
	}

	if os.Geteuid() == 0 {
		log.Warn().Msg("running as root, consider adding the user to the dialout group instead")
	}

	cfg, err := cli.Setup(
		*flags.Config,
		config.BaseDefaults,
		[]io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}},
	)
	if err != nil {
		return err
	}
	defer telemetry.Close()
	flags.Apply(cfg)

	if cli.ServiceRunning(ctx, cfg) {
		return fmt.Errorf("%w on port %d", cli.ErrAlreadyRunning, cfg.APIPort())
	}

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	err = service.Run(ctx, service.Options{
		Config:      cfg,
		DataDir:     helpers.DataDir(),
		WatchConfig: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		return fmt.Errorf("service failed: %w", err)
	}
	log.Info().Msg("service stopped")
	return nil
}
