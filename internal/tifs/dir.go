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

// DirItem is one entry of a directory listing.
type DirItem struct {
	Ino  uint64   `msgpack:"ino" json:"ino"`
	Name string   `msgpack:"name" json:"name"`
	Typ  FileType `msgpack:"typ" json:"typ"`
}

// Dir is the ordered entry list of a directory, stored as block 0 of the
// directory inode. The index entries under ScopeIndex are the authoritative
// name map; this list is the iteration order for readdir. The two are
// mutated together inside each transaction.
type Dir []DirItem

// EncodeDir serializes the listing for storage.
func EncodeDir(dir Dir) ([]byte, error) {
	data, err := serialize([]DirItem(dir))
	if err != nil {
		return nil, errSerialize("directory", Encoding, err)
	}
	return data, nil
}

// DecodeDir deserializes a stored listing.
func DecodeDir(data []byte) (Dir, error) {
	var items []DirItem
	if err := deserialize(data, &items); err != nil {
		return nil, errSerialize("directory", Encoding, err)
	}
	return Dir(items), nil
}
