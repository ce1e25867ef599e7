package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/filedepot/backend/internal/storage"
)

// memoryBlobStore keeps uploaded objects in a map so handler tests run
// without an object store.
type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ storage.BlobStore = (*memoryBlobStore)(nil)

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (m *memoryBlobStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = data
	return nil
}

func (m *memoryBlobStore) Open(_ context.Context, objectName string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBlobStore) Size(_ context.Context, objectName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	if !ok {
		return 0, fmt.Errorf("object %s not found", objectName)
	}
	return int64(len(data)), nil
}

func (m *memoryBlobStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	return nil
}
