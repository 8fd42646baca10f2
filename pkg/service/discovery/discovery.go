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


// Package discovery advertises the sign API over mDNS so clients on the
// hackspace network can find it without knowing its address.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
)

// ServiceType is the DNS-SD service type of the sign API.
const ServiceType = "_yhs-sign._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

// virtualInterfacePrefixes are container and VPN interfaces that should not
// carry mDNS.
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// filterInterfaces keeps interfaces that are up, non-loopback,
// multicast-capable and not virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Registrar registers an mDNS service and returns a function that withdraws
// it.
type Registrar func(instance string, port int, txt []string, ifaces []net.Interface) (func(), error)

func zeroconfRegistrar(instance string, port int, txt []string, ifaces []net.Interface) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return server.Shutdown, nil
}

type Options struct {
	Config *config.Instance
	Clock  clockwork.Clock
	// Register defaults to zeroconf.
	Register Registrar
	// Interfaces defaults to the host's suitable network interfaces.
	Interfaces func() ([]net.Interface, error)
	// Port is the advertised API port, defaulting to the configured one.
	Port int
}

type Service struct {
	cfg        *config.Instance
	clock      clockwork.Clock
	register   Registrar
	interfaces func() ([]net.Interface, error)
	port       int
}

func New(opts Options) *Service {
	s := &Service{
		cfg:        opts.Config,
		clock:      opts.Clock,
		register:   opts.Register,
		interfaces: opts.Interfaces,
		port:       opts.Port,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.register == nil {
		s.register = zeroconfRegistrar
	}
	if s.interfaces == nil {
		s.interfaces = func() ([]net.Interface, error) {
			all, err := net.Interfaces()
			if err != nil {
				return nil, fmt.Errorf("list network interfaces: %w", err)
			}
			return filterInterfaces(all), nil
		}
	}
	if s.port <= 0 {
		s.port = s.cfg.APIPort()
	}
	return s
}

// Run advertises the service until ctx is done. When the network is not up
// yet it retries for a while before giving up; discovery failing never
// stops the sign service.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.DiscoveryEnabled() {
		log.Debug().Msg("mDNS discovery disabled")
		return nil
	}

	instance := s.instanceName()
	withdraw, ok := s.tryRegister(instance)
	if !ok {
		log.Info().
			Dur("retryInterval", retryInterval).
			Dur("maxDuration", maxRetryDuration).
			Msg("mDNS registration failed, retrying in background")

		deadline := s.clock.Now().Add(maxRetryDuration)
		ticker := s.clock.NewTicker(retryInterval)
		defer ticker.Stop()
		for !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.Chan():
			}
			if s.clock.Now().After(deadline) {
				log.Warn().Msg("mDNS registration retry timed out, discovery unavailable")
				return nil
			}
			withdraw, ok = s.tryRegister(instance)
		}
	}

	<-ctx.Done()
	log.Debug().Msg("stopping mDNS advertising")
	withdraw()
	return nil
}

func (s *Service) txtRecords() []string {
	return []string{
		"version=" + config.AppVersion,
		"api=http",
		"port=" + strconv.Itoa(s.port),
	}
}

func (s *Service) tryRegister(instance string) (func(), bool) {
	ifaces, err := s.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to get network interfaces")
		return nil, false
	}
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces for mDNS")
		return nil, false
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	withdraw, err := s.register(instance, s.port, s.txtRecords(), ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return nil, false
	}

	log.Info().
		Str("instance", instance).
		Int("port", s.port).
		Str("type", ServiceType).
		Strs("interfaces", names).
		Msg("mDNS advertising started")
	return withdraw, true
}

// instanceName is the configured name, else the hostname.
func (s *Service) instanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		log.Warn().Err(err).Msg("failed to get hostname, using app name")
		return config.AppName
	}
	return hostname
}
