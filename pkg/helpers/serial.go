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

package helpers

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPort is a candidate sign device found on this machine.
type SerialPort struct {
	Name         string
	VID          string
	PID          string
	SerialNumber string
	IsUSB        bool
}

func (p SerialPort) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (usb %s:%s)", p.Name, strings.ToLower(p.VID), strings.ToLower(p.PID))
}

func portPrefixes(goos string) []string {
	switch goos {
	case "linux":
		return []string{"/dev/ttyUSB", "/dev/ttyACM", "/dev/ttyS", "/dev/ttyAMA"}
	case "darwin":
		return []string{"/dev/tty.usbserial", "/dev/cu.usbserial", "/dev/tty.usbmodem"}
	case "windows":
		return []string{"COM"}
	default:
		return nil
	}
}

// filterPorts keeps ports matching the platform's serial naming, USB
// adapters first since signs are almost always wired through one.
func filterPorts(ports []SerialPort, goos string) []SerialPort {
	prefixes := portPrefixes(goos)
	out := make([]SerialPort, 0, len(ports))
	for _, p := range ports {
		if len(prefixes) > 0 && !slices.ContainsFunc(prefixes, func(prefix string) bool {
			return strings.HasPrefix(p.Name, prefix)
		}) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b SerialPort) int {
		switch {
		case a.IsUSB == b.IsUSB:
			return strings.Compare(a.Name, b.Name)
		case a.IsUSB:
			return -1
		default:
			return 1
		}
	})
	return out
}

// GetSerialDeviceList enumerates serial devices that could be a sign.
func GetSerialDeviceList() ([]SerialPort, error) {
	var ports []SerialPort

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Debug().Err(err).Msg("detailed port listing failed, falling back to names")
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("failed to get serial ports list: %w", listErr)
		}
		for _, name := range names {
			ports = append(ports, SerialPort{Name: name})
		}
	} else {
		for _, d := range details {
			ports = append(ports, SerialPort{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
			})
		}
	}

	return filterPorts(ports, runtime.GOOS), nil
}
