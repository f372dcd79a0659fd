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

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func begin(t *testing.T, s *MemoryStore) Txn {
	t.Helper()
	txn, err := s.Begin(context.Background(), Optimistic)
	require.NoError(t, err)
	return txn
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	txn := begin(t, s)
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit(ctx))

	txn = begin(t, s)
	value, err := txn.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	missing, err := txn.Get(ctx, []byte("absent"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, txn.Delete([]byte("k")))
	require.NoError(t, txn.Commit(ctx))

	txn = begin(t, s)
	value, err = txn.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, value)
	require.NoError(t, txn.Rollback())
}

func TestReadYourOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	txn := begin(t, s)
	require.NoError(t, txn.Put([]byte("k"), []byte("v1")))
	value, err := txn.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, txn.Delete([]byte("k")))
	value, err = txn.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, value)
	require.NoError(t, txn.Rollback())
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	setup := begin(t, s)
	require.NoError(t, setup.Put([]byte("k"), []byte("old")))
	require.NoError(t, setup.Commit(ctx))

	reader := begin(t, s)

	writer := begin(t, s)
	require.NoError(t, writer.Put([]byte("k"), []byte("new")))
	require.NoError(t, writer.Commit(ctx))

	// The reader still sees its snapshot.
	value, err := reader.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), value)
	require.NoError(t, reader.Rollback())
}

func TestWriteWriteConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := begin(t, s)
	b := begin(t, s)

	require.NoError(t, a.Put([]byte("k"), []byte("a")))
	require.NoError(t, b.Put([]byte("k"), []byte("b")))

	require.NoError(t, a.Commit(ctx))
	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestReadWriteConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	setup := begin(t, s)
	require.NoError(t, setup.Put([]byte("k"), []byte("0")))
	require.NoError(t, setup.Commit(ctx))

	// a read-modify-writes "k"; b overwrites it first.
	a := begin(t, s)
	_, err := a.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.NoError(t, a.Put([]byte("other"), []byte("x")))

	b := begin(t, s)
	require.NoError(t, b.Put([]byte("k"), []byte("1")))
	require.NoError(t, b.Commit(ctx))

	err = a.Commit(ctx)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	setup := begin(t, s)
	require.NoError(t, setup.Put([]byte{1, 0}, []byte("a")))
	require.NoError(t, setup.Put([]byte{1, 1}, []byte("b")))
	require.NoError(t, setup.Put([]byte{1, 2}, []byte("c")))
	require.NoError(t, setup.Put([]byte{2, 0}, []byte("d")))
	require.NoError(t, setup.Commit(ctx))

	txn := begin(t, s)
	// Buffered writes show up in scans.
	require.NoError(t, txn.Put([]byte{1, 3}, []byte("e")))
	require.NoError(t, txn.Delete([]byte{1, 1})) // buffered deletes hide entries

	pairs, err := txn.Scan(ctx, []byte{1}, []byte{2}, 10)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, []byte{1, 0}, pairs[0].Key)
	assert.Equal(t, []byte{1, 2}, pairs[1].Key)
	assert.Equal(t, []byte{1, 3}, pairs[2].Key)

	// The limit truncates in key order.
	pairs, err = txn.Scan(ctx, []byte{1}, []byte{2}, 2)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.NoError(t, txn.Rollback())
}

func TestFinishedTxnRejectsUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	txn := begin(t, s)
	require.NoError(t, txn.Commit(ctx))

	_, err := txn.Get(ctx, []byte("k"))
	assert.Error(t, err)
	assert.Error(t, txn.Commit(ctx))
	assert.Error(t, txn.Rollback())
}
