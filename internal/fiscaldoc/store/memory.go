package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in a map. Claim is serialized by the mutex,
// mirroring the conditional update the postgres store uses.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]fiscaldoc.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]fiscaldoc.Document)}
}

func (s *InMemoryStore) Save(_ context.Context, doc *fiscaldoc.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, docID id.DocumentID) (*fiscaldoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &doc, nil
}

// Claim atomically moves a queued document to Transmitting. Exactly one
// concurrent caller wins; everyone else sees ErrInvalidState.
func (s *InMemoryStore) Claim(_ context.Context, docID id.DocumentID, now time.Time) (*fiscaldoc.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := doc.BeginTransmission(now); err != nil {
		if domerrors.HasCode(err, domerrors.CodeInvalidStatusTransition) {
			return nil, errors.Join(sentinel.ErrInvalidState, err)
		}
		return nil, err
	}
	s.docs[docID] = doc
	return &doc, nil
}
