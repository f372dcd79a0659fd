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

// Meta is the filesystem singleton: the inode allocator, the block size
// fixed at first mount, and the statfs result cached by the last statfs
// call.
type Meta struct {
	InodeNext uint64  `msgpack:"inode_next" json:"inode_next"`
	BlockSize uint64  `msgpack:"block_size" json:"block_size"`
	LastStat  *StatFs `msgpack:"last_stat" json:"last_stat"`
}

// NewMeta returns the Meta of a freshly initialized filesystem.
func NewMeta(blockSize uint64) *Meta {
	return &Meta{InodeNext: RootInode, BlockSize: blockSize}
}

// Serialize encodes the meta for storage.
func (m *Meta) Serialize() ([]byte, error) {
	data, err := serialize(m)
	if err != nil {
		return nil, errSerialize("meta", Encoding, err)
	}
	return data, nil
}

// DeserializeMeta decodes a meta record.
func DeserializeMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := deserialize(data, &m); err != nil {
		return nil, errSerialize("meta", Encoding, err)
	}
	return &m, nil
}
