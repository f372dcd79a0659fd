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
	"encoding/binary"
)

// RootInode is the inode id of the filesystem root, fixed by the FUSE
// protocol.
const RootInode uint64 = 1

// Key scopes. Every stored key starts with one of these bytes, followed by
// big-endian fixed-width fields, so that a range scan within one scope
// returns a meaningful group.
const (
	ScopeMeta byte = iota
	ScopeInode
	ScopeBlock
	ScopeHandler
	ScopeIndex
)

const inoLen = 8

// ScopedKey is the decoded form of a stored key.
type ScopedKey struct {
	Scope byte

	// Ino is set for inode, block and handler keys; Parent for index keys.
	Ino     uint64
	Block   uint64
	Handler uint64
	Parent  uint64
	Name    string
}

// MetaKey returns the key of the Meta singleton.
func MetaKey() []byte {
	return []byte{ScopeMeta}
}

// InodeKey returns the key of the inode record for ino.
func InodeKey(ino uint64) []byte {
	buf := make([]byte, 1+inoLen)
	buf[0] = ScopeInode
	binary.BigEndian.PutUint64(buf[1:], ino)
	return buf
}

// BlockKey returns the key of one data block of ino.
func BlockKey(ino, block uint64) []byte {
	buf := make([]byte, 1+2*inoLen)
	buf[0] = ScopeBlock
	binary.BigEndian.PutUint64(buf[1:], ino)
	binary.BigEndian.PutUint64(buf[1+inoLen:], block)
	return buf
}

// HandlerKey returns the key of an open file handle of ino.
func HandlerKey(ino, fh uint64) []byte {
	buf := make([]byte, 1+2*inoLen)
	buf[0] = ScopeHandler
	binary.BigEndian.PutUint64(buf[1:], ino)
	binary.BigEndian.PutUint64(buf[1+inoLen:], fh)
	return buf
}

// IndexKey returns the key of the (parent, name) -> ino index entry.
func IndexKey(parent uint64, name string) []byte {
	buf := make([]byte, 1+inoLen+len(name))
	buf[0] = ScopeIndex
	binary.BigEndian.PutUint64(buf[1:], parent)
	copy(buf[1+inoLen:], name)
	return buf
}

// BlockRange returns the half-open key range covering blocks
// [startBlock, endBlock) of ino.
func BlockRange(ino, startBlock, endBlock uint64) (start, end []byte) {
	return BlockKey(ino, startBlock), BlockKey(ino, endBlock)
}

// InodeRange returns the half-open key range covering inodes
// [startIno, endIno).
func InodeRange(startIno, endIno uint64) (start, end []byte) {
	return InodeKey(startIno), InodeKey(endIno)
}

// ParseKey decodes a stored key back into its scoped form. Malformed input
// yields an InvalidScopedKey error.
func ParseKey(key []byte) (ScopedKey, error) {
	if len(key) == 0 {
		return ScopedKey{}, errInvalidScopedKey(key)
	}
	scope, data := key[0], key[1:]
	switch scope {
	case ScopeMeta:
		if len(data) != 0 {
			return ScopedKey{}, errInvalidScopedKey(key)
		}
		return ScopedKey{Scope: ScopeMeta}, nil

	case ScopeInode:
		if len(data) != inoLen {
			return ScopedKey{}, errInvalidScopedKey(key)
		}
		return ScopedKey{
			Scope: ScopeInode,
			Ino:   binary.BigEndian.Uint64(data),
		}, nil

	case ScopeBlock:
		if len(data) != 2*inoLen {
			return ScopedKey{}, errInvalidScopedKey(key)
		}
		return ScopedKey{
			Scope: ScopeBlock,
			Ino:   binary.BigEndian.Uint64(data),
			Block: binary.BigEndian.Uint64(data[inoLen:]),
		}, nil

	case ScopeHandler:
		if len(data) != 2*inoLen {
			return ScopedKey{}, errInvalidScopedKey(key)
		}
		return ScopedKey{
			Scope:   ScopeHandler,
			Ino:     binary.BigEndian.Uint64(data),
			Handler: binary.BigEndian.Uint64(data[inoLen:]),
		}, nil

	case ScopeIndex:
		if len(data) < inoLen {
			return ScopedKey{}, errInvalidScopedKey(key)
		}
		return ScopedKey{
			Scope:  ScopeIndex,
			Parent: binary.BigEndian.Uint64(data),
			Name:   string(data[inoLen:]),
		}, nil
	}
	return ScopedKey{}, errInvalidScopedKey(key)
}
