// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package checkpoint persists per-day backfill progress in BadgerDB.
//
// Each day-unit is its own key under a (entity, range) prefix, so workers
// record their outcomes independently with no cross-worker contention. A
// checkpoint survives abnormal termination for resume and is swept when
// the backfill completes cleanly.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/dugout/internal/models"
)

// Key layout:
//
//	cp:<entity>:<range>:meta        -> checkpointMeta
//	cp:<entity>:<range>:day:<day>   -> models.DayProgress
const keyPrefix = "cp:"

// checkpointMeta records the pool configuration the backfill started with.
type checkpointMeta struct {
	Workers   int       `json:"workers"`
	StartedAt time.Time `json:"started_at"`
}

// Store is a BadgerDB-backed checkpoint store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, for tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scopePrefix(entity models.EntityType, dr models.DateRange) string {
	return keyPrefix + string(entity) + ":" + dr.String() + ":"
}

func dayKey(entity models.EntityType, dr models.DateRange, day time.Time) []byte {
	return []byte(scopePrefix(entity, dr) + "day:" + day.Format(models.DayFormat))
}

func metaKey(entity models.EntityType, dr models.DateRange) []byte {
	return []byte(scopePrefix(entity, dr) + "meta")
}

// Begin records the pool configuration for a new backfill attempt. Safe to
// call on resume; the original metadata is overwritten with the current
// configuration.
func (s *Store) Begin(entity models.EntityType, dr models.DateRange, workers int) error {
	data, err := json.Marshal(checkpointMeta{Workers: workers, StartedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal checkpoint meta: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(entity, dr), data)
	})
	if err != nil {
		return fmt.Errorf("write checkpoint meta: %w", err)
	}
	return nil
}

// Record persists one day-unit's terminal outcome. Workers call this
// concurrently; each day is an independent key.
func (s *Store) Record(entity models.EntityType, dr models.DateRange, progress models.DayProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal day progress: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dayKey(entity, dr, progress.Day), data)
	})
	if err != nil {
		return fmt.Errorf("write day progress: %w", err)
	}
	return nil
}

// Load reads the checkpoint for (entity, range). found is false when no
// prior attempt left one behind.
func (s *Store) Load(entity models.EntityType, dr models.DateRange) (*models.Checkpoint, bool, error) {
	cp := &models.Checkpoint{
		Entity: entity,
		Range:  dr,
		Days:   make(map[string]models.DayProgress),
	}
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(entity, dr))
		if err == nil {
			found = true
			if err := item.Value(func(val []byte) error {
				var meta checkpointMeta
				if err := json.Unmarshal(val, &meta); err != nil {
					return err
				}
				cp.Workers = meta.Workers
				return nil
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		prefix := []byte(scopePrefix(entity, dr) + "day:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			found = true
			err := it.Item().Value(func(val []byte) error {
				var p models.DayProgress
				if err := json.Unmarshal(val, &p); err != nil {
					return err
				}
				cp.Days[p.Day.Format(models.DayFormat)] = p
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return cp, true, nil
}

// Clear removes all keys for (entity, range). Called after a fully
// successful backfill.
func (s *Store) Clear(entity models.EntityType, dr models.DateRange) error {
	prefix := []byte(scopePrefix(entity, dr))

	// Collect then delete: Badger iterators are read-only views.
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan checkpoint keys: %w", err)
	}

	for _, key := range keys {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return fmt.Errorf("delete checkpoint key %s: %w", key, err)
		}
	}
	return nil
}
