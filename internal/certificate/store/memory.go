package store

import (
	"context"
	"sync"
	"time"

	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// InMemoryStore keeps certificates in a map guarded by a mutex. The mutex is
// what makes Activate atomic here; the postgres store uses a transaction for
// the same guarantee.
type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[id.CertificateID]certificate.Certificate
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.CertificateID]certificate.Certificate)}
}

func (s *InMemoryStore) Save(_ context.Context, cert *certificate.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.ID] = *cert
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, certID id.CertificateID) (*certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &cert, nil
}

func (s *InMemoryStore) ListByBusiness(_ context.Context, businessID id.BusinessID) ([]*certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*certificate.Certificate
	for _, cert := range s.certs {
		if cert.BusinessID == businessID {
			c := cert
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindInstalled(_ context.Context, businessID id.BusinessID) (*certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cert := range s.certs {
		if cert.BusinessID == businessID && cert.Status == certificate.StatusInstalled {
			c := cert
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Activate demotes every installed certificate of the business and promotes
// the target, all under one lock so concurrent activations serialize.
func (s *InMemoryStore) Activate(_ context.Context, businessID id.BusinessID, certID id.CertificateID, now time.Time) (*certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.certs[certID]
	if !ok || target.BusinessID != businessID {
		return nil, sentinel.ErrNotFound
	}
	if target.Status == certificate.StatusInstalled {
		return &target, nil
	}

	for key, cert := range s.certs {
		if cert.BusinessID == businessID && cert.Status == certificate.StatusInstalled {
			if err := cert.Deactivate(now); err != nil {
				return nil, err
			}
			s.certs[key] = cert
		}
	}

	if err := target.Install(now); err != nil {
		return nil, err
	}
	s.certs[certID] = target
	return &target, nil
}
