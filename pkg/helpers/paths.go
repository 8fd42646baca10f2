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
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
)

var (
	userDirOnce   sync.Once
	userDirCache  string
	userDirExists bool
)

func ExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

// userDirIn reports whether a portable "user" directory exists in dir.
func userDirIn(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	userDir := filepath.Join(dir, config.UserDir)
	info, err := os.Stat(userDir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return userDir, true
}

// HasUserDir checks for a "user" directory next to the executable. When it
// exists it holds config, data and logs, for a portable install. The result
// is cached after the first call.
func HasUserDir() (string, bool) {
	userDirOnce.Do(func() {
		userDirCache, userDirExists = userDirIn(ExeDir())
	})
	return userDirCache, userDirExists
}

// ConfigDir is where config.toml lives: the portable user dir, or
// $XDG_CONFIG_HOME/yhs-sign.
func ConfigDir() string {
	if v, ok := HasUserDir(); ok {
		return v
	}
	return filepath.Join(xdg.ConfigHome, config.AppName)
}

// DataDir holds the topics database and logs: the portable user dir, or
// $XDG_DATA_HOME/yhs-sign.
func DataDir() string {
	if v, ok := HasUserDir(); ok {
		return v
	}
	return filepath.Join(xdg.DataHome, config.AppName)
}

func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}
