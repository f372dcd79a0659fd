// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tifs

import (
	"context"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/hexilee/tifs/internal/logger"
	"github.com/hexilee/tifs/internal/monitor"
	"github.com/hexilee/tifs/internal/store"
)

const (
	// DefaultBlockSize is used when no blksize mount option is given.
	DefaultBlockSize uint64 = 1 << 16

	// MaxNameLen bounds directory entry names.
	MaxNameLen uint32 = 1 << 8

	// ScanLimit caps a single range scan.
	ScanLimit = 1 << 10

	// setlkwMaxAttempts bounds the blocking-lock poll loop; exceeding it
	// surfaces RetryTimesExcess instead of spinning forever.
	setlkwMaxAttempts = 1 << 10

	// setlkwDelay is the pause between blocking-lock polls.
	setlkwDelay = 10 * time.Millisecond
)

// Config carries everything the engine needs from the mount options.
type Config struct {
	// BlockSize is fixed at first init; later mounts must match.
	BlockSize uint64

	// MaxSize caps the filesystem size in bytes; zero means unbounded.
	MaxSize uint64

	// DirectIO forces the direct-IO reply flag on every open.
	DirectIO bool
}

// TiFS is the filesystem engine. Each operation builds a transactional
// closure and runs it through the retry driver; the engine itself holds no
// mutable state, so concurrent operations coordinate only through the
// store's transactions.
type TiFS struct {
	store     store.Store
	clock     timeutil.Clock
	blockSize uint64
	maxBlocks uint64
	directIO  bool
}

// NewTiFS builds an engine on the given store.
func NewTiFS(s store.Store, clock timeutil.Clock, cfg Config) *TiFS {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &TiFS{
		store:     s,
		clock:     clock,
		blockSize: blockSize,
		maxBlocks: cfg.MaxSize / blockSize,
		directIO:  cfg.DirectIO,
	}
}

// DirectIO reports whether every open must reply with the direct-IO flag.
func (fs *TiFS) DirectIO() bool { return fs.directIO }

// BlockSize returns the configured block size.
func (fs *TiFS) BlockSize() uint64 { return fs.blockSize }

// Txn starts a transaction in the given mode, wrapped with the engine
// configuration. Admin paths use this directly; filesystem operations go
// through the retry driver.
func (fs *TiFS) Txn(ctx context.Context, mode store.Mode) (*Txn, error) {
	txn, err := fs.store.Begin(ctx, mode)
	if err != nil {
		return nil, err
	}
	return NewTxn(txn, fs.clock, fs.blockSize, fs.maxBlocks, MaxNameLen), nil
}

////////////////////////////////////////////////////////////////////////
// Retry driver
////////////////////////////////////////////////////////////////////////

// spin runs f in fresh optimistic transactions until it commits or fails
// with a non-retryable error, pausing delay between attempts. The closure
// must be re-entrant: it may run any number of times, so it cannot have side
// effects outside the transaction.
func spin[T any](ctx context.Context, fs *TiFS, delay time.Duration, f func(ctx context.Context, txn *Txn) (T, error)) (T, error) {
	var zero T
	for {
		value, err := tryOnce(ctx, fs, f)
		if err == nil {
			return value, nil
		}
		if KindOf(err) != KindKeyError {
			return zero, err
		}
		logger.Tracef("spin because of a key error: %v", err)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		} else if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
}

// spinNoDelay is spin without a pause between attempts.
func spinNoDelay[T any](ctx context.Context, fs *TiFS, f func(ctx context.Context, txn *Txn) (T, error)) (T, error) {
	return spin(ctx, fs, 0, f)
}

// tryOnce runs f in one transaction: commit on success, rollback on
// failure. Exactly one of the two happens.
func tryOnce[T any](ctx context.Context, fs *TiFS, f func(ctx context.Context, txn *Txn) (T, error)) (T, error) {
	var zero T
	txn, err := fs.Txn(ctx, store.Optimistic)
	if err != nil {
		return zero, err
	}

	value, err := f(ctx, txn)
	if err != nil {
		if rbErr := txn.Rollback(); rbErr != nil {
			logger.Warnf("rollback failed: %v", rbErr)
		}
		if store.IsConflict(err) {
			return zero, errKeyError(err)
		}
		return zero, err
	}

	commitStart := fs.clock.Now()
	if err := txn.Commit(ctx); err != nil {
		if store.IsConflict(err) {
			return zero, errKeyError(err)
		}
		return zero, err
	}
	latency := fs.clock.Now().Sub(commitStart)
	monitor.RecordCommit(ctx, latency)
	logger.Tracef("transaction committed in %v", latency)
	return value, nil
}
