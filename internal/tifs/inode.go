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
	"time"

	"golang.org/x/sys/unix"
)

// FileType is the kind of an inode.
type FileType uint8

const (
	RegularFile FileType = iota
	Directory
	Symlink
	NamedPipe
	BlockDevice
	CharDevice
	Socket
)

// LockState is the advisory-lock state of an inode. It is either unlocked
// (no owners, type F_UNLCK), read-locked (one or more owners, F_RDLCK) or
// write-locked (exactly one owner, F_WRLCK).
type LockState struct {
	Owners map[uint64]bool `msgpack:"owners" json:"owners"`
	LkType int32           `msgpack:"lk_type" json:"lk_type"`
}

// NewLockState returns the unlocked state.
func NewLockState() LockState {
	return LockState{Owners: make(map[uint64]bool), LkType: unix.F_UNLCK}
}

// AddOwner records owner as holding the lock.
func (s *LockState) AddOwner(owner uint64) {
	if s.Owners == nil {
		s.Owners = make(map[uint64]bool)
	}
	s.Owners[owner] = true
}

// RemoveOwner drops owner; with the last owner gone the type resets to
// F_UNLCK.
func (s *LockState) RemoveOwner(owner uint64) {
	delete(s.Owners, owner)
	if len(s.Owners) == 0 {
		s.LkType = unix.F_UNLCK
	}
}

// HeldBy reports whether owner holds the lock.
func (s *LockState) HeldBy(owner uint64) bool {
	return s.Owners[owner]
}

// SoleOwner reports whether owner is the only holder.
func (s *LockState) SoleOwner(owner uint64) bool {
	return len(s.Owners) == 1 && s.Owners[owner]
}

// Inode is the per-file metadata record. All timestamps are unix
// nanoseconds.
type Inode struct {
	Ino    uint64 `msgpack:"ino" json:"ino"`
	Size   uint64 `msgpack:"size" json:"size"`
	Blocks uint64 `msgpack:"blocks" json:"blocks"`

	Atime  int64 `msgpack:"atime" json:"atime"`
	Mtime  int64 `msgpack:"mtime" json:"mtime"`
	Ctime  int64 `msgpack:"ctime" json:"ctime"`
	Crtime int64 `msgpack:"crtime" json:"crtime"`

	Kind    FileType `msgpack:"kind" json:"kind"`
	Perm    uint16   `msgpack:"perm" json:"perm"`
	Nlink   uint32   `msgpack:"nlink" json:"nlink"`
	Uid     uint32   `msgpack:"uid" json:"uid"`
	Gid     uint32   `msgpack:"gid" json:"gid"`
	Rdev    uint32   `msgpack:"rdev" json:"rdev"`
	BlkSize uint32   `msgpack:"blksize" json:"blksize"`
	Flags   uint32   `msgpack:"flags" json:"flags"`

	LockState  LockState `msgpack:"lock_state" json:"lock_state"`
	InlineData []byte    `msgpack:"inline_data" json:"inline_data"`

	NextFh   uint64 `msgpack:"next_fh" json:"next_fh"`
	OpenedFh uint64 `msgpack:"opened_fh" json:"opened_fh"`
}

// SetSize updates Size and recomputes Blocks for the given block size.
func (in *Inode) SetSize(size, blockSize uint64) {
	in.Size = size
	in.Blocks = (size + blockSize - 1) / blockSize
}

// AtimeTime and friends expose the stored nanosecond stamps as time.Time.
func (in *Inode) AtimeTime() time.Time  { return time.Unix(0, in.Atime) }
func (in *Inode) MtimeTime() time.Time  { return time.Unix(0, in.Mtime) }
func (in *Inode) CtimeTime() time.Time  { return time.Unix(0, in.Ctime) }
func (in *Inode) CrtimeTime() time.Time { return time.Unix(0, in.Crtime) }

// Serialize encodes the inode for storage.
func (in *Inode) Serialize() ([]byte, error) {
	data, err := serialize(in)
	if err != nil {
		return nil, errSerialize("inode", Encoding, err)
	}
	return data, nil
}

// DeserializeInode decodes an inode record.
func DeserializeInode(data []byte) (*Inode, error) {
	var in Inode
	if err := deserialize(data, &in); err != nil {
		return nil, errSerialize("inode", Encoding, err)
	}
	return &in, nil
}
