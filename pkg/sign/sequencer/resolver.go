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

package sequencer

import (
	"fmt"
	"slices"

	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/config"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/protocol"
	"github.com/yorkhackspace/yhs-sign/pkg/sign/store"
)

// minSuggestSimilarity is the Jaro-Winkler score a known key needs to be
// offered as a suggestion.
const minSuggestSimilarity = 0.7

// Resolver maps a target to the sign label it is written to.
type Resolver interface {
	Resolve(target store.Target) (byte, error)
}

// ConfigResolver resolves against the live config, so edits to the text
// key list apply to the next submission.
type ConfigResolver struct {
	cfg *config.Instance
}

func NewConfigResolver(cfg *config.Instance) *ConfigResolver {
	return &ConfigResolver{cfg: cfg}
}

func (r *ConfigResolver) Resolve(target store.Target) (byte, error) {
	switch target.Kind {
	case store.KindTextKey:
		keys := r.cfg.TextKeys()
		if !slices.Contains(keys, target.Name) {
			return 0, &UnknownTopicError{
				Name:       target.Name,
				Suggestion: Suggest(target.Name, keys),
			}
		}
		return r.cfg.TextLabel(), nil
	case store.KindTopic:
		if target.Name == "" {
			return 0, fmt.Errorf("%w: empty topic name", ErrInvalidTarget)
		}
		return r.cfg.TopicLabel(), nil
	case store.KindLabel:
		if len(target.Name) != 1 || !protocol.ValidLabel(target.Name[0]) {
			return 0, &protocol.EncodingError{Err: protocol.ErrInvalidLabel, Label: firstByte(target.Name)}
		}
		return target.Name[0], nil
	default:
		return 0, fmt.Errorf("%w: kind %d", ErrInvalidTarget, target.Kind)
	}
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}

// Suggest returns the candidate most similar to name, or "" when none is
// similar enough.
func Suggest(name string, candidates []string) string {
	best := ""
	var bestScore float32
	for _, c := range candidates {
		score := edlib.JaroWinklerSimilarity(name, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < minSuggestSimilarity {
		return ""
	}
	log.Debug().
		Str("query", name).
		Str("suggestion", best).
		Float32("similarity", bestScore).
		Msg("suggesting text key")
	return best
}
