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

	"golang.org/x/sys/unix"

	"github.com/hexilee/tifs/internal/logger"
)

// SetLk applies an advisory lock transition on ino for owner. With sleep
// set, a conflicting lock makes the call wait by polling the inode until the
// holder releases; without it the conflict fails with InvalidLock.
// Directories cannot be locked.
func (fs *TiFS) SetLk(ctx context.Context, ino, owner uint64, typ int32, sleep bool) error {
	acquired, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (bool, error) {
		return setLkOnce(ctx, txn, ino, owner, typ, sleep)
	})
	if err != nil {
		return err
	}
	if !acquired {
		return fs.setLkWait(ctx, ino, owner, typ)
	}
	return nil
}

// GetLk reports the lock type currently held on ino.
func (fs *TiFS) GetLk(ctx context.Context, ino uint64) (*Lock, error) {
	return spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Lock, error) {
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return nil, err
		}
		return &Lock{Typ: inode.LockState.LkType}, nil
	})
}

// setLkOnce attempts one lock transition. It returns true when the state
// changed (or needed no change), false when the caller should block and try
// again, and InvalidLock for forbidden transitions.
func setLkOnce(ctx context.Context, txn *Txn, ino, owner uint64, typ int32, sleep bool) (bool, error) {
	inode, err := txn.ReadInode(ctx, ino)
	if err != nil {
		return false, err
	}
	if inode.Kind == Directory {
		return false, errInvalidLock()
	}
	state := &inode.LockState

	switch typ {
	case unix.F_RDLCK:
		if state.LkType == unix.F_WRLCK && !state.SoleOwner(owner) {
			if sleep {
				return false, nil
			}
			return false, errInvalidLock()
		}
		if state.LkType != unix.F_WRLCK {
			state.LkType = unix.F_RDLCK
		}
		state.AddOwner(owner)
		return true, txn.SaveInode(inode)

	case unix.F_WRLCK:
		switch state.LkType {
		case unix.F_UNLCK:
			state.Owners = map[uint64]bool{owner: true}
			state.LkType = unix.F_WRLCK
			return true, txn.SaveInode(inode)
		case unix.F_RDLCK, unix.F_WRLCK:
			if state.SoleOwner(owner) {
				state.LkType = unix.F_WRLCK
				return true, txn.SaveInode(inode)
			}
			if sleep {
				return false, nil
			}
			return false, errInvalidLock()
		default:
			return false, errInvalidLock()
		}

	case unix.F_UNLCK:
		state.RemoveOwner(owner)
		return true, txn.SaveInode(inode)
	}
	return false, errInvalidLock()
}

// setLkWait is the blocking half of setlkw: re-read the inode until the
// conflicting lock goes away, yielding between attempts so other operations
// make progress. The loop is bounded; exhausting it surfaces
// RetryTimesExcess.
func (fs *TiFS) setLkWait(ctx context.Context, ino, owner uint64, typ int32) error {
	for attempt := uint64(0); attempt < setlkwMaxAttempts; attempt++ {
		acquired, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (bool, error) {
			return setLkWaitOnce(ctx, txn, ino, owner, typ)
		})
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		logger.Tracef("lock on ino(%d) still held, owner(%d) waiting", ino, owner)
		select {
		case <-time.After(setlkwDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errRetryTimesExcess(setlkwMaxAttempts)
}

func setLkWaitOnce(ctx context.Context, txn *Txn, ino, owner uint64, typ int32) (bool, error) {
	inode, err := txn.ReadInode(ctx, ino)
	if err != nil {
		return false, err
	}
	state := &inode.LockState

	switch typ {
	case unix.F_WRLCK:
		switch {
		case len(state.Owners) == 0:
			state.LkType = unix.F_WRLCK
			state.AddOwner(owner)
			return true, txn.SaveInode(inode)
		case state.SoleOwner(owner):
			state.LkType = unix.F_WRLCK
			return true, txn.SaveInode(inode)
		default:
			return false, nil
		}

	case unix.F_RDLCK:
		if state.LkType == unix.F_WRLCK {
			return false, nil
		}
		state.LkType = unix.F_RDLCK
		state.AddOwner(owner)
		return true, txn.SaveInode(inode)
	}
	return false, errInvalidLock()
}
