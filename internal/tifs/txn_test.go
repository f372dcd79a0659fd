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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexilee/tifs/internal/store"
)

// withTxn runs f in one optimistic transaction and commits it.
func withTxn(t *testing.T, fs *TiFS, f func(txn *Txn) error) {
	t.Helper()
	ctx := context.Background()
	txn, err := fs.Txn(ctx, store.Optimistic)
	require.NoError(t, err)
	if err := f(txn); err != nil {
		require.NoError(t, txn.Rollback())
		t.Fatalf("transaction failed: %v", err)
	}
	require.NoError(t, txn.Commit(ctx))
}

func TestReadDirOnFileFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	create, err := fs.Create(ctx, RootInode, "plain", MakeMode(RegularFile, 0o644), 0, 0)
	require.NoError(t, err)

	_, err = fs.ReadDir(ctx, create.Stat.Ino, 0)
	require.Error(t, err)
	assert.Equal(t, KindBlockNotFound, KindOf(err))
}

func TestClearDataErasesBlocks(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	create, err := fs.Create(ctx, RootInode, "f", MakeMode(RegularFile, 0o644), 0, 0)
	require.NoError(t, err)
	ino := create.Stat.Ino
	_, err = fs.Write(ctx, ino, create.Fh, 0, make([]byte, 3*testBlockSize))
	require.NoError(t, err)

	withTxn(t, fs, func(txn *Txn) error {
		cleared, err := txn.ClearData(ctx, ino)
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(3*testBlockSize), cleared)
		return nil
	})

	attr, err := fs.GetAttr(ctx, ino)
	require.NoError(t, err)
	assert.Zero(t, attr.Stat.Size)
	assert.Zero(t, attr.Stat.Blocks)

	withTxn(t, fs, func(txn *Txn) error {
		for block := uint64(0); block < 3; block++ {
			value, err := txn.GetRaw(ctx, BlockKey(ino, block))
			if err != nil {
				return err
			}
			assert.Nil(t, value, "block %d survived", block)
		}
		return nil
	})
}

func TestInodeErasedCompletely(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	create, err := fs.Create(ctx, RootInode, "gone", MakeMode(RegularFile, 0o644), 0, 0)
	require.NoError(t, err)
	ino := create.Stat.Ino
	_, err = fs.Write(ctx, ino, create.Fh, 0, make([]byte, 2*testBlockSize))
	require.NoError(t, err)

	require.NoError(t, fs.Unlink(ctx, RootInode, "gone"))
	require.NoError(t, fs.Release(ctx, ino, create.Fh))

	withTxn(t, fs, func(txn *Txn) error {
		value, err := txn.GetRaw(ctx, InodeKey(ino))
		if err != nil {
			return err
		}
		assert.Nil(t, value, "inode record survived")

		for block := uint64(0); block < 2; block++ {
			value, err := txn.GetRaw(ctx, BlockKey(ino, block))
			if err != nil {
				return err
			}
			assert.Nil(t, value, "block %d survived", block)
		}
		return nil
	})
}

func TestDeleteMeta(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	withTxn(t, fs, func(txn *Txn) error {
		return txn.DeleteMeta()
	})
	withTxn(t, fs, func(txn *Txn) error {
		meta, err := txn.ReadMeta(ctx)
		if err != nil {
			return err
		}
		assert.Nil(t, meta)
		return nil
	})
}

func TestOpenAllocatesDistinctHandles(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs(t)

	create, err := fs.Create(ctx, RootInode, "f", MakeMode(RegularFile, 0o644), 0, 0)
	require.NoError(t, err)

	a, err := fs.Open(ctx, create.Stat.Ino)
	require.NoError(t, err)
	b, err := fs.Open(ctx, create.Stat.Ino)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fh, b.Fh)
	assert.NotEqual(t, create.Fh, a.Fh)

	attr, err := fs.GetAttr(ctx, create.Stat.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), attr.Stat.OpenedFh)

	require.NoError(t, fs.Release(ctx, create.Stat.Ino, a.Fh))
	attr, err = fs.GetAttr(ctx, create.Stat.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), attr.Stat.OpenedFh)

	// Closing an unknown handle fails.
	err = fs.Release(ctx, create.Stat.Ino, 99)
	assert.Equal(t, KindFhNotFound, KindOf(err))
}
