package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// InMemoryBlobStore keeps blobs in a map. It backs tests and single-process
// development; production deployments plug in a real backend.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Store(_ context.Context, data []byte, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fileID := uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[fileID] = buf
	return fileID, nil
}

func (s *InMemoryBlobStore) Fetch(_ context.Context, fileID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[fileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}
