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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexilee/tifs/internal/store"
)

func newTestFs(t *testing.T) *TiFS {
	t.Helper()
	fs := NewTiFS(store.NewMemoryStore(), timeutil.RealClock(), Config{BlockSize: testBlockSize})
	require.NoError(t, fs.Init(context.Background(), 0, 0))
	return fs
}

// Concurrent read-modify-write closures must not lose updates: conflicts
// retry until every increment lands.
func TestSpinRetriesConflictsUntilCommit(t *testing.T) {
	const (
		workers    = 4
		increments = 16
	)
	ctx := context.Background()
	fs := newTestFs(t)

	bump := func() error {
		_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (uint64, error) {
			meta, err := txn.ReadMeta(ctx)
			if err != nil {
				return 0, err
			}
			meta.InodeNext++
			return meta.InodeNext, txn.SaveMeta(meta)
		})
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < increments; n++ {
				if err := bump(); err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	txn, err := fs.Txn(ctx, store.Optimistic)
	require.NoError(t, err)
	meta, err := txn.ReadMeta(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	// Root allocation moved InodeNext to 2; every increment after that
	// must be visible.
	assert.Equal(t, uint64(2+workers*increments), meta.InodeNext)
}

// Non-retryable failures must surface immediately, after a rollback.
func TestSpinPropagatesRealErrors(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	boom := errors.New("boom")
	calls := 0
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		calls++
		return struct{}{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

// A canceled context stops the spin instead of looping forever.
func TestSpinHonorsContextWithDelay(t *testing.T) {
	fs := newTestFs(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := spin(ctx, fs, 5*time.Millisecond, func(ctx context.Context, txn *Txn) (struct{}, error) {
			return struct{}{}, errKeyError(errors.New("synthetic conflict"))
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("spin did not stop on cancellation")
	}
}
