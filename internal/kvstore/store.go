// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package kvstore is the BadgerDB-backed store for short-lived coordination
// state: rate window counters and sync locks. Every entry carries a native
// badger TTL so nothing here needs explicit cleanup.
package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
)

// Key prefixes
const (
	rateKeyPrefix = "rate:"
	lockKeyPrefix = "lock:"
)

const maxConflictRetries = 20

// ErrClosed is returned after Close.
var ErrClosed = errors.New("kvstore is closed")

// Store wraps a badger database.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens the store described by cfg. InMemory ignores Path.
func Open(cfg *config.StoreConfig) (*Store, error) {
	if cfg.InMemory {
		return OpenInMemory()
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Msg("Key-value store opened")
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.checkOpen()
}

// Increment adds one to the counter at key and returns the new value. The
// entry expires ttl from now; rate window keys embed their window so the
// expiry only bounds storage.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	k := []byte(rateKeyPrefix + key)

	var n int64
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := readCounter(txn, k)
			if err != nil {
				return err
			}
			n = current + 1
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(n))
			return txn.SetEntry(badger.NewEntry(k, buf).WithTTL(ttl))
		})
		if errors.Is(err, badger.ErrConflict) {
			time.Sleep(time.Duration(attempt+1) * time.Millisecond)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("increment %s: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("increment %s: %w", key, badger.ErrConflict)
}

// Get returns the counter at key, zero when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCounter(txn, []byte(rateKeyPrefix+key))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return n, nil
}

func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter value of %d bytes", len(val))
		}
		n = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return n, err
}

// Lock is a held sync lock. Release is safe to call more than once.
type Lock struct {
	store *Store
	key   []byte
	token []byte
	once  sync.Once
}

// TryLock acquires the lock named key for ttl. It returns (nil, nil) when
// another holder owns it, including when a concurrent TryLock wins the race.
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := []byte(lockKeyPrefix + key)
	token := []byte(uuid.NewString())
	held := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			held = true
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry(k, token).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		held = true
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if held {
		metrics.SyncLockContentionTotal.WithLabelValues(lockScope(key)).Inc()
		logging.Debug().Str("lock", key).Msg("Sync lock already held")
		return nil, nil
	}
	return &Lock{store: s, key: k, token: token}, nil
}

// Release deletes the lock if this holder still owns it. A lock that expired
// and was taken by someone else is left alone.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if err := l.store.checkOpen(); err != nil {
			return
		}
		err := l.store.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(l.key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			owned := false
			if err := item.Value(func(val []byte) error {
				owned = string(val) == string(l.token)
				return nil
			}); err != nil {
				return err
			}
			if !owned {
				return nil
			}
			return txn.Delete(l.key)
		})
		if err != nil {
			logging.Warn().Err(err).Str("lock", string(l.key)).Msg("Failed to release sync lock")
		}
	})
}

// IsLocked reports whether key is currently held by anyone.
func (s *Store) IsLocked(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	locked := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(lockKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		locked = true
		return nil
	})
	return locked, err
}

// lockScope is the part of a lock key before the first colon, e.g. "campaign"
// for "campaign:123".
func lockScope(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
