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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tikv/client-go/v2/config"
	tikverr "github.com/tikv/client-go/v2/error"
	tikv "github.com/tikv/client-go/v2/kv"
	"github.com/tikv/client-go/v2/txnkv"
	"github.com/tikv/client-go/v2/txnkv/transaction"
)

// Security holds the TLS material for talking to the PD/TiKV endpoints. The
// zero value means plaintext.
type Security struct {
	CAPath   string
	CertPath string
	KeyPath  string
}

func (s Security) enabled() bool {
	return s.CAPath != "" && s.CertPath != "" && s.KeyPath != ""
}

// TiKVStore is the production Store backed by a TiKV cluster.
type TiKVStore struct {
	client *txnkv.Client
}

// NewTiKVStore connects to the cluster behind the given PD endpoints.
func NewTiKVStore(pdEndpoints []string, security Security) (*TiKVStore, error) {
	if security.enabled() {
		config.UpdateGlobal(func(conf *config.Config) {
			conf.Security = config.NewSecurity(
				security.CAPath, security.CertPath, security.KeyPath, nil)
		})
	}

	client, err := txnkv.NewClient(pdEndpoints)
	if err != nil {
		return nil, fmt.Errorf("connecting to pd endpoints %v: %w", pdEndpoints, err)
	}
	return &TiKVStore{client: client}, nil
}

func (s *TiKVStore) Begin(ctx context.Context, mode Mode) (Txn, error) {
	txn, err := s.client.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	if mode == Pessimistic {
		txn.SetPessimistic(true)
	}
	return &tikvTxn{txn: txn, mode: mode}, nil
}

func (s *TiKVStore) Close() error {
	return s.client.Close()
}

type tikvTxn struct {
	txn  *transaction.KVTxn
	mode Mode
}

func (t *tikvTxn) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := t.txn.Get(ctx, key)
	if tikverr.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return value, nil
}

func (t *tikvTxn) GetForUpdate(ctx context.Context, key []byte) ([]byte, error) {
	if t.mode == Pessimistic {
		lockCtx := tikv.NewLockCtx(t.txn.StartTS(), 0, time.Now())
		if err := t.txn.LockKeys(ctx, lockCtx, key); err != nil {
			return nil, classify(err)
		}
	}
	return t.Get(ctx, key)
}

func (t *tikvTxn) Put(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *tikvTxn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

func (t *tikvTxn) Scan(ctx context.Context, start, end []byte, limit int) ([]KeyValue, error) {
	it, err := t.txn.Iter(start, end)
	if err != nil {
		return nil, classify(err)
	}
	defer it.Close()

	var pairs []KeyValue
	for it.Valid() && len(pairs) < limit {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		pairs = append(pairs, KeyValue{Key: key, Value: value})
		if err := it.Next(); err != nil {
			return nil, classify(err)
		}
	}
	return pairs, nil
}

func (t *tikvTxn) Commit(ctx context.Context) error {
	if err := t.txn.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (t *tikvTxn) Rollback() error {
	return t.txn.Rollback()
}

// classify folds the client's retryable error classes into the conflict
// marker the retry driver looks for.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var conflict *tikverr.ErrWriteConflict
	if errors.As(err, &conflict) {
		return NewConflictError(err)
	}
	var deadlock *tikverr.ErrDeadlock
	if errors.As(err, &deadlock) && deadlock.IsRetryable {
		return NewConflictError(err)
	}
	return err
}
