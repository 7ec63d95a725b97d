// Package service implements the certificate lifecycle: upload, validation,
// and the atomic activation that keeps at most one certificate installed per
// business.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate"
	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate/reader"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/metrics"
	"github.com/gregoritrentin/prospera-api-sub003/internal/storage"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// Store is what the lifecycle needs from persistence. Activate must be
// atomic: the memory store serializes with its mutex, the postgres store
// with a transaction.
type Store interface {
	Save(ctx context.Context, cert *certificate.Certificate) error
	Get(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error)
	ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*certificate.Certificate, error)
	FindInstalled(ctx context.Context, businessID id.BusinessID) (*certificate.Certificate, error)
	Activate(ctx context.Context, businessID id.BusinessID, certID id.CertificateID, now time.Time) (*certificate.Certificate, error)
}

// Locker serializes activation per business across process instances. The
// store transaction alone protects a single database, the lock also covers
// read-modify-write sequences spanning multiple app instances.
type Locker interface {
	// Lock acquires the named lock, blocking until available or ctx is done.
	// The returned function releases it.
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Options tune certificate policy.
type Options struct {
	// RequireTrustedChain rejects containers that carry no CA chain. Kept as
	// policy rather than silently skipping the check everywhere.
	RequireTrustedChain bool
	ActivationLockTTL   time.Duration
}

// Service is the certificate lifecycle manager.
type Service struct {
	reader  *reader.Reader
	store   Store
	blobs   storage.BlobStore
	locker  Locker
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

func New(r *reader.Reader, store Store, blobs storage.BlobStore, locker Locker, m *metrics.Metrics, opts Options) *Service {
	if opts.ActivationLockTTL <= 0 {
		opts.ActivationLockTTL = 10 * time.Second
	}
	return &Service{
		reader:  r,
		store:   store,
		blobs:   blobs,
		locker:  locker,
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// Create parses the container, stores it, and persists a certificate in
// PendingValidation. Reader failures propagate with their code unchanged.
func (s *Service) Create(ctx context.Context, businessID id.BusinessID, container []byte, password string, source certificate.Source) (*certificate.Certificate, error) {
	info, err := s.reader.Read(container, password)
	if err != nil {
		return nil, err
	}
	if s.opts.RequireTrustedChain && !info.HasCAChain {
		return nil, domerrors.New(domerrors.CodeCertificateValidationFailed,
			"container carries no CA chain and trusted-chain policy is enabled")
	}

	now := s.now()
	fileID, err := s.blobs.Store(ctx, container, "application/x-pkcs12",
		fmt.Sprintf("certificate-%s-%s.pfx", businessID, info.Thumbprint))
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeInternal, "store certificate container", err)
	}

	cert := certificate.New(id.NewCertificateID(), businessID, fileID, password,
		source, info.SerialNumber, info.Thumbprint, info.NotBefore, info.NotAfter, now)
	if err := s.store.Save(ctx, cert); err != nil {
		return nil, domerrors.Wrap(domerrors.CodeInternal, "persist certificate", err)
	}
	return cert, nil
}

// Activate promotes the target certificate to Installed, demoting any other
// installed certificate of the same business in the same logical operation.
func (s *Service) Activate(ctx context.Context, businessID id.BusinessID, certID id.CertificateID) (*certificate.Certificate, error) {
	unlock, err := s.locker.Lock(ctx, "certificate:activate:"+businessID.String(), s.opts.ActivationLockTTL)
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeInternal, "acquire activation lock", err)
	}
	defer unlock()

	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.Newf(domerrors.CodeResourceNotFound, "certificate %s not found", certID)
		}
		return nil, domerrors.Wrap(domerrors.CodeInternal, "load certificate", err)
	}
	if cert.BusinessID != businessID {
		return nil, domerrors.Newf(domerrors.CodeNotAllowed,
			"certificate %s does not belong to business %s", certID, businessID)
	}

	activated, err := s.store.Activate(ctx, businessID, certID, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.Newf(domerrors.CodeResourceNotFound, "certificate %s not found", certID)
		}
		return nil, domerrors.Wrap(domerrors.CodeInternal, "activate certificate", err)
	}
	if s.metrics != nil {
		s.metrics.CertActivations.Inc()
	}
	return activated, nil
}

// Installed returns the business's currently installed certificate.
func (s *Service) Installed(ctx context.Context, businessID id.BusinessID) (*certificate.Certificate, error) {
	cert, err := s.store.FindInstalled(ctx, businessID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.Newf(domerrors.CodeCertificateNotInstalled,
				"business %s has no installed certificate", businessID)
		}
		return nil, domerrors.Wrap(domerrors.CodeInternal, "find installed certificate", err)
	}
	return cert, nil
}

// List returns every certificate of a business, installed or not.
func (s *Service) List(ctx context.Context, businessID id.BusinessID) ([]*certificate.Certificate, error) {
	certs, err := s.store.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeInternal, "list certificates", err)
	}
	return certs, nil
}

// Container fetches the PKCS#12 bytes for signing.
func (s *Service) Container(ctx context.Context, cert *certificate.Certificate) ([]byte, error) {
	data, err := s.blobs.Fetch(ctx, cert.FileID)
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeInternal, "fetch certificate container", err)
	}
	return data, nil
}
