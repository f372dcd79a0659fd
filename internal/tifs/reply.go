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

// Reply values of the facade operations. The set is closed; the fuse adapter
// translates each into its kernel reply shape.

// Entry is the reply of lookup-like operations.
type Entry struct {
	Stat       *Inode
	Generation uint64
}

// Attr is the reply of getattr and setattr.
type Attr struct {
	Stat *Inode
}

// Open is the reply of open.
type Open struct {
	Fh    uint64
	Flags uint32
}

// Create is the reply of create: an entry plus an open handle.
type Create struct {
	Stat       *Inode
	Generation uint64
	Fh         uint64
	Flags      uint32
}

// Data is the reply of read and readlink.
type Data struct {
	Data []byte
}

// Write is the reply of write.
type Write struct {
	Size uint32
}

// DirReply is the reply of readdir: the entries from the requested offset
// onward.
type DirReply struct {
	Offset int
	Items  []DirItem
}

// DirPlusReply pairs each entry with its full attributes for readdirplus.
type DirPlusReply struct {
	Offset int
	Items  []DirPlusItem
}

// DirPlusItem is one readdirplus entry.
type DirPlusItem struct {
	Item  DirItem
	Entry Entry
}

// Lseek is the reply of lseek.
type Lseek struct {
	Offset int64
}

// Lock is the reply of getlk.
type Lock struct {
	Start uint64
	End   uint64
	Typ   int32
	Pid   uint32
}

// Xattr is the reply of the xattr queries.
type Xattr struct {
	Data []byte
	Size uint32
}

// Bmap is the reply of bmap.
type Bmap struct {
	Block uint64
}

// StatFs is the reply of statfs. It is also cached inside Meta, where the
// write path consults Bavail to pre-reject writes on a full filesystem.
type StatFs struct {
	Blocks  uint64 `msgpack:"blocks" json:"blocks"`
	Bfree   uint64 `msgpack:"bfree" json:"bfree"`
	Bavail  uint64 `msgpack:"bavail" json:"bavail"`
	Files   uint64 `msgpack:"files" json:"files"`
	Ffree   uint64 `msgpack:"ffree" json:"ffree"`
	Bsize   uint32 `msgpack:"bsize" json:"bsize"`
	Namelen uint32 `msgpack:"namelen" json:"namelen"`
	Frsize  uint32 `msgpack:"frsize" json:"frsize"`
}
