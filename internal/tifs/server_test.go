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
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexilee/tifs/internal/store"
)

func newTestServer(t *testing.T) *fuseServer {
	t.Helper()
	fs := NewTiFS(store.NewMemoryStore(), timeutil.RealClock(), Config{BlockSize: testBlockSize})
	require.NoError(t, fs.Init(context.Background(), 500, 500))
	return &fuseServer{
		fs:      fs,
		uid:     500,
		gid:     500,
		handles: make(map[fuseops.HandleID]handleTarget),
	}
}

func TestServerCreateWriteReadRelease(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.RootInodeID,
		Name:   "file.txt",
		Mode:   0o644,
	}
	require.NoError(t, s.CreateFile(ctx, createOp))
	assert.Equal(t, uint32(500), createOp.Entry.Attributes.Uid)
	assert.EqualValues(t, 0o644, createOp.Entry.Attributes.Mode.Perm())

	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Offset: 0,
		Data:   []byte("bridge data"),
	}
	require.NoError(t, s.WriteFile(ctx, writeOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Offset: 0,
		Dst:    make([]byte, 64),
	}
	require.NoError(t, s.ReadFile(ctx, readOp))
	assert.Equal(t, len("bridge data"), readOp.BytesRead)
	assert.Equal(t, []byte("bridge data"), readOp.Dst[:readOp.BytesRead])

	require.NoError(t, s.ReleaseFileHandle(ctx, &fuseops.ReleaseFileHandleOp{
		Handle: createOp.Handle,
	}))

	// The handle is gone afterwards.
	err := s.ReadFile(ctx, readOp)
	assert.Equal(t, syscall.EBADF, err)
}

func TestServerLookUpMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	err := s.LookUpInode(ctx, &fuseops.LookUpInodeOp{
		Parent: fuseops.RootInodeID,
		Name:   "missing",
	})
	assert.Equal(t, syscall.ENOENT, err)
}

func TestServerMkDirAndReadDir(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	mkdirOp := &fuseops.MkDirOp{
		Parent: fuseops.RootInodeID,
		Name:   "sub",
		Mode:   os.ModeDir | 0o755,
	}
	require.NoError(t, s.MkDir(ctx, mkdirOp))
	assert.True(t, mkdirOp.Entry.Attributes.Mode.IsDir())

	createOp := &fuseops.CreateFileOp{
		Parent: mkdirOp.Entry.Child,
		Name:   "inner",
		Mode:   0o600,
	}
	require.NoError(t, s.CreateFile(ctx, createOp))

	openDirOp := &fuseops.OpenDirOp{Inode: mkdirOp.Entry.Child}
	require.NoError(t, s.OpenDir(ctx, openDirOp))

	readDirOp := &fuseops.ReadDirOp{
		Inode:  mkdirOp.Entry.Child,
		Handle: openDirOp.Handle,
		Offset: 0,
		Dst:    make([]byte, 1024),
	}
	require.NoError(t, s.ReadDir(ctx, readDirOp))
	assert.Greater(t, readDirOp.BytesRead, 0)

	require.NoError(t, s.ReleaseDirHandle(ctx, &fuseops.ReleaseDirHandleOp{
		Handle: openDirOp.Handle,
	}))
}

func TestServerStatFS(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	op := &fuseops.StatFSOp{}
	require.NoError(t, s.StatFS(ctx, op))
	assert.Equal(t, uint32(testBlockSize), op.BlockSize)
	assert.NotZero(t, op.InodesFree)
}

func TestServerRmDirNotEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d", Mode: os.ModeDir | 0o755}
	require.NoError(t, s.MkDir(ctx, mkdirOp))
	createOp := &fuseops.CreateFileOp{Parent: mkdirOp.Entry.Child, Name: "f", Mode: 0o644}
	require.NoError(t, s.CreateFile(ctx, createOp))

	err := s.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "d"})
	assert.Equal(t, syscall.ENOTEMPTY, err)
}

func TestServerSymlink(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	symlinkOp := &fuseops.CreateSymlinkOp{
		Parent: fuseops.RootInodeID,
		Name:   "ln",
		Target: "/elsewhere",
	}
	require.NoError(t, s.CreateSymlink(ctx, symlinkOp))

	readOp := &fuseops.ReadSymlinkOp{Inode: symlinkOp.Entry.Child}
	require.NoError(t, s.ReadSymlink(ctx, readOp))
	assert.Equal(t, "/elsewhere", readOp.Target)
}
