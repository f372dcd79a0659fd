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

// FileHandler is the persistent per-open state: the file cursor, plus the
// open flags reserved for future use. Read and write resolve their absolute
// position as cursor + caller offset, which is what makes lseek move
// subsequent IO.
type FileHandler struct {
	Cursor uint64 `msgpack:"cursor" json:"cursor"`
	Flags  uint32 `msgpack:"flags" json:"flags"`
}

// Serialize encodes the handler for storage.
func (h *FileHandler) Serialize() ([]byte, error) {
	data, err := serialize(h)
	if err != nil {
		return nil, errSerialize("file handler", Encoding, err)
	}
	return data, nil
}

// DeserializeFileHandler decodes a handler record.
func DeserializeFileHandler(data []byte) (*FileHandler, error) {
	var h FileHandler
	if err := deserialize(data, &h); err != nil {
		return nil, errSerialize("file handler", Encoding, err)
	}
	return &h, nil
}
