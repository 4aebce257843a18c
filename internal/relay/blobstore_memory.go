package relay

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	data []byte
	meta ObjectMeta
}

// MemoryBlobStore keeps blobs in process memory; used by tests and the
// memory:// blob store DSN.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string]memoryObject{}}
}

func (m *MemoryBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64, meta ObjectMeta) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, meta: meta}
	return nil
}

func (m *MemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, int64, ObjectMeta, error) {
	m.mu.Lock()
	obj, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, 0, ObjectMeta{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), int64(len(obj.data)), obj.meta, nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryBlobStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
