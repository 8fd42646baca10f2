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

// Package store caches what the service believes is on the sign: the
// current text of each topic and label, and the line lists of topics.
package store

import (
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yorkhackspace/yhs-sign/pkg/helpers/syncutil"
)

const (
	PlaceholderTopic = "__PLACEHOLDER"
	PlaceholderText  = "Welcome to York Hackspace"
	TutorialTopic    = "__TUTORIAL"
	TutorialText     = "http://big-sign.yhs:8080/help"

	reservedPrefix = "__"
)

// IsReserved reports whether a topic name belongs to the system.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

// Kind says how a Target name is interpreted.
type Kind int

const (
	KindTextKey Kind = iota
	KindTopic
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindTextKey:
		return "textkey"
	case KindTopic:
		return "topic"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Target names where text is written.
type Target struct {
	Name string
	Kind Kind
}

func TextKey(name string) Target { return Target{Kind: KindTextKey, Name: name} }
func Topic(name string) Target   { return Target{Kind: KindTopic, Name: name} }
func Label(label byte) Target    { return Target{Kind: KindLabel, Name: string(label)} }

func (t Target) String() string {
	return t.Kind.String() + ":" + t.Name
}

// ParseTarget reads the form used by GET /text/get/{label}: a single
// character is a label, anything longer is a topic.
func ParseTarget(s string) Target {
	if len(s) == 1 {
		return Target{Kind: KindLabel, Name: s}
	}
	return Topic(s)
}

// Text keys and topics share one namespace so a text key written directly
// and the same name written as a topic read back the same value.
func entryKey(t Target) string {
	if t.Kind == KindLabel {
		return "label:" + t.Name
	}
	return "topic:" + t.Name
}

// Persister saves topic line lists across restarts.
type Persister interface {
	LoadTopics() ([]TopicLines, error)
	SaveTopic(name string, lines []string) error
	DeleteTopic(name string) error
	Close() error
}

// TopicLines is a topic and its lines, in insertion order when listed.
type TopicLines struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines"`
}

// Store is safe for concurrent use. Every write replaces an entry whole so
// readers never see a partial value.
type Store struct {
	persister Persister
	text      map[string]string
	lines     map[string][]string
	order     []string
	mu        syncutil.RWMutex

	// saveMu keeps persister writes in the same order as memory updates
	saveMu syncutil.Mutex
}

// New creates an empty store. persister may be nil.
func New(persister Persister) *Store {
	return &Store{
		persister: persister,
		text:      make(map[string]string),
		lines:     make(map[string][]string),
	}
}

// Load fills the store from the persister and seeds the tutorial topic.
func (s *Store) Load() error {
	if s.persister != nil {
		topics, err := s.persister.LoadTopics()
		if err != nil {
			return err
		}
		s.mu.Lock()
		for _, t := range topics {
			s.setLinesLocked(t.Name, t.Lines)
		}
		s.mu.Unlock()
		log.Info().Int("topics", len(topics)).Msg("loaded topics")
	}

	s.mu.Lock()
	s.setLinesLocked(TutorialTopic, []string{TutorialText})
	s.mu.Unlock()
	return nil
}

func (s *Store) Write(target Target, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text[entryKey(target)] = text
}

// Read returns the last text written to target. ok is false when nothing
// has been written, which callers render as blank.
func (s *Store) Read(target Target) (text string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok = s.text[entryKey(target)]
	return text, ok
}

// SetLines replaces the line list of a topic and saves it. The topic keeps
// its position in the rotation if it already existed.
func (s *Store) SetLines(topic string, lines []string) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.setLinesLocked(topic, lines)
	persister := s.persister
	s.mu.Unlock()

	if persister == nil || IsReserved(topic) {
		return
	}
	if err := persister.SaveTopic(topic, lines); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to persist topic")
	}
}

func (s *Store) setLinesLocked(topic string, lines []string) {
	if _, exists := s.lines[topic]; !exists {
		s.order = append(s.order, topic)
	}
	s.lines[topic] = slices.Clone(lines)
}

func (s *Store) Lines(topic string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines, ok := s.lines[topic]
	if !ok {
		return nil, false
	}
	return slices.Clone(lines), true
}

// DeleteTopic removes a topic and its current text. It reports whether the
// topic existed.
func (s *Store) DeleteTopic(topic string) bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	_, ok := s.lines[topic]
	if ok {
		delete(s.lines, topic)
		delete(s.text, entryKey(Topic(topic)))
		s.order = slices.DeleteFunc(s.order, func(name string) bool { return name == topic })
	}
	persister := s.persister
	s.mu.Unlock()

	if !ok || persister == nil || IsReserved(topic) {
		return ok
	}
	if err := persister.DeleteTopic(topic); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to delete persisted topic")
	}
	return ok
}

// Topics returns a copy of every topic with its lines.
func (s *Store) Topics() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.lines))
	for name, lines := range s.lines {
		out[name] = slices.Clone(lines)
	}
	return out
}

// TopicNames returns topic names in insertion order.
func (s *Store) TopicNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Next returns the topic after the named one, wrapping around. An unknown
// or empty name starts from the first topic. With no topics at all the
// placeholder is returned.
func (s *Store) Next(after string) (string, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return PlaceholderTopic, []string{PlaceholderText}
	}

	next := 0
	if idx := slices.Index(s.order, after); idx >= 0 {
		next = (idx + 1) % len(s.order)
	}
	name := s.order[next]
	return name, slices.Clone(s.lines[name])
}

// ResetLabels forgets the cached text of every label, used after the
// sign memory has been cleared.
func (s *Store) ResetLabels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.text {
		if strings.HasPrefix(k, "label:") {
			delete(s.text, k)
		}
	}
}

func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}
