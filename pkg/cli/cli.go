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


package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/internal/telemetry"
	"github.com/yorkhackspace/yhs-sign/pkg/api/client"
	"github.com/yorkhackspace/yhs-sign/pkg/api/models"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers"
)

// ErrDone is returned by Pre and Post when a flag was handled and the
// process should exit without starting the service.
var ErrDone = errors.New("done")

var ErrAlreadyRunning = errors.New("sign service already running")

const serviceCheckTimeout = time.Second

type Flags struct {
	fs        *flag.FlagSet
	Config    *string
	Device    *string
	Baud      *int
	Port      *int
	Topics    *string
	Watch     *string
	Fake      *bool
	ListPorts *bool
	Version   *bool
	Debug     *bool
}

// SetupFlags defines all CLI flags on fs, or the default command line set
// when fs is nil.
func SetupFlags(fs *flag.FlagSet) *Flags {
	if fs == nil {
		fs = flag.CommandLine
	}
	return &Flags{
		fs: fs,
		Config: fs.String(
			"config",
			"",
			"path to config.toml (default in the user config dir)",
		),
		Fake: fs.Bool(
			"fake",
			false,
			"log sign frames instead of writing to a serial port",
		),
		Device: fs.String(
			"device",
			"",
			"serial device of the sign, overrides config",
		),
		Baud: fs.Int(
			"baud",
			0,
			"serial baud rate, overrides config",
		),
		Port: fs.Int(
			"port",
			0,
			"API port, overrides config",
		),
		ListPorts: fs.Bool(
			"list-ports",
			false,
			"list available serial ports and exit",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		Debug: fs.Bool(
			"debug",
			false,
			"enable debug logging",
		),
		Topics: fs.String(
			"topics",
			"",
			"print the topics of a running service at this URL and exit",
		),
		Watch: fs.String(
			"watch",
			"",
			"print notifications from a running service at this URL",
		),
	}
}

func (f *Flags) isFlagPassed(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses args and actions any flags that don't need config or logging.
func (f *Flags) Pre(args []string, out io.Writer) error {
	if err := f.fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	switch {
	case *f.Version:
		_, _ = fmt.Fprintf(out, "YHS Sign v%s (%s/%s)\n", config.AppVersion, runtime.GOOS, runtime.GOARCH)
		return ErrDone
	case *f.ListPorts:
		ports, err := helpers.GetSerialDeviceList()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		printPorts(out, ports)
		return ErrDone
	}
	return nil
}

func printPorts(out io.Writer, ports []helpers.SerialPort) {
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "no serial ports found")
		return
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p.String())
	}
}

// Apply copies flag overrides into the loaded config. Overrides are not
// saved to disk.
func (f *Flags) Apply(cfg *config.Instance) {
	if *f.Fake {
		cfg.SetFakeSign(true)
	}
	if f.isFlagPassed("device") && *f.Device != "" {
		cfg.SetSignDevice(*f.Device)
	}
	if f.isFlagPassed("baud") && *f.Baud > 0 {
		cfg.SetBaudRate(*f.Baud)
	}
	if f.isFlagPassed("port") && *f.Port > 0 {
		cfg.SetAPIPort(*f.Port)
	}
	if *f.Debug {
		cfg.SetDebugLogging(true)
		helpers.SetDebugLevel(true)
	}
}

// Post actions the client flags, which talk to an already running service.
func (f *Flags) Post(ctx context.Context, out io.Writer) error {
	switch {
	case f.isFlagPassed("topics"):
		c, err := client.New(*f.Topics)
		if err != nil {
			return err
		}
		defer c.CloseIdleConnections()
		if err := printTopics(ctx, c, out); err != nil {
			return err
		}
		return ErrDone
	case f.isFlagPassed("watch"):
		c, err := client.New(*f.Watch)
		if err != nil {
			return err
		}
		defer c.CloseIdleConnections()
		err = c.Watch(ctx, func(n models.NotificationObject) {
			_, _ = fmt.Fprintf(out, "%s %s\n", n.Method, string(n.Params))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch failed: %w", err)
		}
		return ErrDone
	}
	return nil
}

func printTopics(ctx context.Context, c *client.Client, out io.Writer) error {
	resp, err := c.Topics(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch topics: %w", err)
	}
	if len(resp.Order) == 0 {
		_, _ = fmt.Fprintln(out, "no topics")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range resp.Order {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, strings.Join(resp.Topics[name], " | "))
	}
	return tw.Flush()
}

// ServiceRunning reports whether a sign service already answers on the
// configured API port of this machine.
func ServiceRunning(ctx context.Context, cfg *config.Instance) bool {
	ctx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	c := client.NewLocal(cfg)
	defer c.CloseIdleConnections()
	if _, err := c.Health(ctx); err != nil {
		log.Debug().Err(err).Msg("no running service found")
		return false
	}
	return true
}

// Setup creates the data directories, loads the config and starts logging
// and opt-in error reporting. Extra writers (usually the console) are added
// to the log output.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	configPath string,
	defaultConfig config.Values,
	writers []io.Writer,
) (*config.Instance, error) {
	if err := helpers.EnsureDirectories(helpers.DataDir(), helpers.LogDir()); err != nil {
		return nil, err
	}

	var (
		cfg *config.Instance
		err error
	)
	if configPath != "" {
		cfg, err = config.NewConfigAt(configPath, defaultConfig)
	} else {
		cfg, err = config.NewConfig(helpers.ConfigDir(), defaultConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	sentryWriter, err := telemetry.Init(
		cfg.ErrorReporting(),
		cfg.SentryDSN(),
		config.AppVersion,
		runtime.GOOS,
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error reporting disabled: %v\n", err)
	} else if sentryWriter != nil {
		writers = append(writers, sentryWriter)
	}

	if err := helpers.InitLogging(helpers.LogDir(), writers); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	helpers.SetDebugLevel(cfg.DebugLogging())
	log.Info().Str("config", cfg.Path()).Msg("config loaded")

	return cfg, nil
}
