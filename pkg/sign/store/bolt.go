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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

const BucketTopics = "topics"

type boltTopic struct {
	Lines []string `json:"lines"`
	Seq   uint64   `json:"seq"`
}

// BoltPersister keeps topic lines in a bbolt file, one JSON value per
// topic keyed by name.
type BoltPersister struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltPersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create topics directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketTopics))
		return err
	})
	if err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create topics bucket: %w", err), closeErr)
	}

	return &BoltPersister{db: db}, nil
}

// LoadTopics returns every saved topic in the order it was first saved.
func (p *BoltPersister) LoadTopics() ([]TopicLines, error) {
	type seqTopic struct {
		TopicLines
		seq uint64
	}
	var found []seqTopic

	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketTopics))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketTopics)
		}
		return b.ForEach(func(k, v []byte) error {
			var t boltTopic
			if err := json.Unmarshal(v, &t); err != nil {
				log.Warn().Err(err).Str("topic", string(k)).Msg("skipping unreadable topic")
				return nil
			}
			found = append(found, seqTopic{
				TopicLines: TopicLines{Name: string(k), Lines: t.Lines},
				seq:        t.Seq,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to view bolt database: %w", err)
	}

	slices.SortFunc(found, func(a, b seqTopic) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	out := make([]TopicLines, 0, len(found))
	for _, t := range found {
		out = append(out, t.TopicLines)
	}
	return out, nil
}

// SaveTopic writes a topic's lines, keeping its original sequence number
// when it already exists.
func (p *BoltPersister) SaveTopic(name string, lines []string) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketTopics))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketTopics)
		}

		t := boltTopic{Lines: lines}
		var existing boltTopic
		if v := b.Get([]byte(name)); v != nil && json.Unmarshal(v, &existing) == nil {
			t.Seq = existing.Seq
		} else {
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get sequence: %w", err)
			}
			t.Seq = seq
		}

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal topic: %w", err)
		}
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save topic %q: %w", name, err)
	}
	return nil
}

func (p *BoltPersister) DeleteTopic(name string) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketTopics))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", BucketTopics)
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("failed to delete topic %q: %w", name, err)
	}
	return nil
}

func (p *BoltPersister) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}
