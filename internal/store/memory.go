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

package store

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with snapshot isolation, used by tests
// in place of a TiKV cluster. Transactions read from a snapshot taken at
// Begin; at commit time any key read or written that a concurrent committer
// touched first fails the transaction with a conflict error, mirroring the
// optimistic behavior of the real client.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	written map[string]uint64
	version uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string][]byte),
		written: make(map[string]uint64),
	}
}

func (s *MemoryStore) Begin(ctx context.Context, mode Mode) (Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	return &memoryTxn{
		store:    s,
		mode:     mode,
		startVer: s.version,
		snapshot: snapshot,
		reads:    make(map[string]bool),
		writes:   make(map[string]memoryWrite),
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

type memoryWrite struct {
	value  []byte
	delete bool
}

type memoryTxn struct {
	store    *MemoryStore
	mode     Mode
	startVer uint64
	snapshot map[string][]byte
	reads    map[string]bool
	writes   map[string]memoryWrite
	finished bool
}

var errTxnFinished = errors.New("transaction already finished")

func (t *memoryTxn) Get(ctx context.Context, key []byte) ([]byte, error) {
	if t.finished {
		return nil, errTxnFinished
	}
	k := string(key)
	if w, ok := t.writes[k]; ok {
		if w.delete {
			return nil, nil
		}
		return append([]byte(nil), w.value...), nil
	}
	t.reads[k] = true
	value, ok := t.snapshot[k]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (t *memoryTxn) GetForUpdate(ctx context.Context, key []byte) ([]byte, error) {
	return t.Get(ctx, key)
}

func (t *memoryTxn) Put(key, value []byte) error {
	if t.finished {
		return errTxnFinished
	}
	t.writes[string(key)] = memoryWrite{value: append([]byte(nil), value...)}
	return nil
}

func (t *memoryTxn) Delete(key []byte) error {
	if t.finished {
		return errTxnFinished
	}
	t.writes[string(key)] = memoryWrite{delete: true}
	return nil
}

func (t *memoryTxn) Scan(ctx context.Context, start, end []byte, limit int) ([]KeyValue, error) {
	if t.finished {
		return nil, errTxnFinished
	}

	merged := make(map[string][]byte)
	for k, v := range t.snapshot {
		merged[k] = v
	}
	for k, w := range t.writes {
		if w.delete {
			delete(merged, k)
		} else {
			merged[k] = w.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		if bytes.Compare([]byte(k), start) >= 0 && bytes.Compare([]byte(k), end) < 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var pairs []KeyValue
	for _, k := range keys {
		if len(pairs) >= limit {
			break
		}
		t.reads[k] = true
		pairs = append(pairs, KeyValue{
			Key:   []byte(k),
			Value: append([]byte(nil), merged[k]...),
		})
	}
	return pairs, nil
}

func (t *memoryTxn) Commit(ctx context.Context) error {
	if t.finished {
		return errTxnFinished
	}
	t.finished = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range t.reads {
		if s.written[k] > t.startVer {
			return NewConflictError(errors.New("write conflict on " + k))
		}
	}
	for k := range t.writes {
		if s.written[k] > t.startVer {
			return NewConflictError(errors.New("write conflict on " + k))
		}
	}

	s.version++
	for k, w := range t.writes {
		if w.delete {
			delete(s.data, k)
		} else {
			s.data[k] = append([]byte(nil), w.value...)
		}
		s.written[k] = s.version
	}
	return nil
}

func (t *memoryTxn) Rollback() error {
	if t.finished {
		return errTxnFinished
	}
	t.finished = true
	return nil
}
