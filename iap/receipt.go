// Copyright 2026 The Nakama Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package iap

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ReceiptStore exposes the latest receipt known for this device. Every read observes the current stored value,
// re-reading is how a stale receipt gets refreshed.
type ReceiptStore interface {
	CurrentReceipt(ctx context.Context) (ReceiptBlob, error)
	StoreReceipt(ctx context.Context, receipt ReceiptBlob) error
}

type FileReceiptStore struct {
	path string
}

func NewFileReceiptStore(path string) *FileReceiptStore {
	return &FileReceiptStore{path: path}
}

func (s *FileReceiptStore) CurrentReceipt(ctx context.Context) (ReceiptBlob, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReceiptBlob{}, ErrNoReceiptPresent
		}
		return ReceiptBlob{}, err
	}
	if len(data) == 0 {
		return ReceiptBlob{}, ErrNoReceiptPresent
	}
	return ReceiptBlob{Data: data}, nil
}

// StoreReceipt replaces the receipt file through a rename so readers never observe a partial write.
func (s *FileReceiptStore) StoreReceipt(ctx context.Context, receipt ReceiptBlob) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".receipt-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(receipt.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

type MemoryReceiptStore struct {
	sync.RWMutex
	data []byte
}

func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{}
}

func (s *MemoryReceiptStore) CurrentReceipt(ctx context.Context) (ReceiptBlob, error) {
	s.RLock()
	defer s.RUnlock()
	if len(s.data) == 0 {
		return ReceiptBlob{}, ErrNoReceiptPresent
	}
	data := make([]byte, len(s.data))
	copy(data, s.data)
	return ReceiptBlob{Data: data}, nil
}

func (s *MemoryReceiptStore) StoreReceipt(ctx context.Context, receipt ReceiptBlob) error {
	data := make([]byte, len(receipt.Data))
	copy(data, receipt.Data)
	s.Lock()
	s.data = data
	s.Unlock()
	return nil
}

// RedisReceiptStore keeps the receipt under a single key so several engine instances serving one device share it.
type RedisReceiptStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisReceiptStore(client redis.UniversalClient, key string) *RedisReceiptStore {
	return &RedisReceiptStore{client: client, key: key}
}

func (s *RedisReceiptStore) CurrentReceipt(ctx context.Context) (ReceiptBlob, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ReceiptBlob{}, ErrNoReceiptPresent
		}
		return ReceiptBlob{}, err
	}
	if len(data) == 0 {
		return ReceiptBlob{}, ErrNoReceiptPresent
	}
	return ReceiptBlob{Data: data}, nil
}

func (s *RedisReceiptStore) StoreReceipt(ctx context.Context, receipt ReceiptBlob) error {
	return s.client.Set(ctx, s.key, receipt.Data, 0).Err()
}
