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

//go:build !jsoncodec

package tifs

import "github.com/vmihailenco/msgpack/v5"

// Encoding names the on-store serialization of all entities. Debug builds
// can switch to JSON with the jsoncodec build tag.
const Encoding = "msgpack"

func serialize(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func deserialize(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
