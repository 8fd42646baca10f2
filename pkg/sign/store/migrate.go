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

package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
)

// MigrateLegacyJSON imports topics from the JSON file written by the old
// sign service, a map of topic name to lines, then renames the file so it
// is only imported once. A missing file is not an error.
func MigrateLegacyJSON(path string, p Persister) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read legacy topics file: %w", err)
	}

	var topics map[string][]string
	if err := json.Unmarshal(data, &topics); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("legacy topics file is not valid, skipping")
		if renameErr := os.Rename(path, path+".error"); renameErr != nil {
			return fmt.Errorf("failed to rename legacy topics file to .error: %w", renameErr)
		}
		return nil
	}

	var failed int
	for _, name := range slices.Sorted(maps.Keys(topics)) {
		if IsReserved(name) {
			continue
		}
		if err := p.SaveTopic(name, topics[name]); err != nil {
			log.Warn().Err(err).Str("topic", name).Msg("error migrating topic")
			failed++
		}
	}

	if failed > 0 {
		log.Warn().Msgf("%d errors migrating legacy topics", failed)
		if err := os.Rename(path, path+".error"); err != nil {
			return fmt.Errorf("failed to rename legacy topics file to .error: %w", err)
		}
		return nil
	}

	log.Info().Int("topics", len(topics)).Msg("migrated legacy topics")
	if err := os.Rename(path, path+".migrated"); err != nil {
		return fmt.Errorf("failed to rename legacy topics file to .migrated: %w", err)
	}
	return nil
}
