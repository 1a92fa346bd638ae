package store

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemStore keeps blobs in memory. It backs tests and embedded use where no
// durable store is configured.
type MemStore struct {
	lock  sync.Mutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		blobs: make(map[string][]byte),
	}
}

// Put stores the blob under key. The key doubles as the location handle.
func (m *MemStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.blobs[key]; ok {
		return "", ErrKeyExists
	}
	m.blobs[key] = data
	return key, nil
}

// Get returns a reader over the blob at location.
func (m *MemStore) Get(ctx context.Context, location string) (io.ReadCloser, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	data, ok := m.blobs[location]
	if !ok {
		return nil, ErrKeyDoesntExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob at location.
func (m *MemStore) Delete(ctx context.Context, location string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.blobs[location]; !ok {
		return ErrKeyDoesntExist
	}
	delete(m.blobs, location)
	return nil
}
