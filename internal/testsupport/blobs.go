package testsupport

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
)

// Blob is an object held by MemoryBlobStore.
type Blob struct {
	Data        []byte
	ContentType string
}

// MemoryBlobStore is an in-memory BlobStore. Set PutErr to make every Put fail.
type MemoryBlobStore struct {
	mu     sync.Mutex
	blobs  map[string]Blob
	PutErr error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]Blob)}
}

func (m *MemoryBlobStore) Put(_ context.Context, objectName string, r io.Reader, _ int64, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[objectName] = Blob{Data: data, ContentType: contentType}
	return nil
}

func (m *MemoryBlobStore) Get(_ context.Context, objectName string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[objectName]
	if !ok {
		return nil, 0, apperrors.New(apperrors.KindNotFound, "object not found")
	}
	return io.NopCloser(bytes.NewReader(b.Data)), int64(len(b.Data)), nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, objectName)
	return nil
}

func (m *MemoryBlobStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			delete(m.blobs, name)
		}
	}
	return nil
}

// Object returns the stored object and whether it exists.
func (m *MemoryBlobStore) Object(name string) (Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	return b, ok
}

// Names lists stored object names in sorted order.
func (m *MemoryBlobStore) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
