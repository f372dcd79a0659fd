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

// Index is the value stored under an index key: the inode the (parent, name)
// pair resolves to.
type Index struct {
	Ino uint64 `msgpack:"ino" json:"ino"`
}

// Serialize encodes the index value for storage.
func (i Index) Serialize() ([]byte, error) {
	data, err := serialize(&i)
	if err != nil {
		return nil, errSerialize("index", Encoding, err)
	}
	return data, nil
}

// DeserializeIndex decodes an index value.
func DeserializeIndex(data []byte) (Index, error) {
	var i Index
	if err := deserialize(data, &i); err != nil {
		return Index{}, errSerialize("index", Encoding, err)
	}
	return i, nil
}
