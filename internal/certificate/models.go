package certificate

import (
	"time"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Status is the lifecycle state of a digital certificate. Status never moves
// through raw assignment; only the named transitions below may change it.
type Status string

const (
	StatusPendingValidation Status = "pending_validation"
	StatusInstalled         Status = "installed"
	StatusDeactivated       Status = "deactivated"
	// StatusExpired is a derived, read-time fact. It is never persisted;
	// EffectiveStatus reports it when the validity window has passed.
	StatusExpired Status = "expired"
)

// Source records how a certificate container reached the system.
type Source string

const (
	SourceUpload Source = "upload"
	SourceImport Source = "import"
)

// Certificate is a business's signing certificate, backed by a PKCS#12
// container kept in blob storage. At most one certificate per business holds
// StatusInstalled at any instant.
type Certificate struct {
	ID         id.CertificateID
	BusinessID id.BusinessID

	// FileID references the stored PKCS#12 container in blob storage.
	FileID string
	// ContainerPassword opens the container again at signing time. The
	// surrounding application is responsible for encrypting it at rest.
	ContainerPassword string

	Source       Source
	SerialNumber string
	// Thumbprint is the uppercase hex SHA-1 digest of the leaf certificate's
	// DER encoding.
	Thumbprint string

	IssuedAt    time.Time
	ExpiresAt   time.Time
	InstalledAt *time.Time

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a certificate in PendingValidation, the only legal entry state.
func New(certID id.CertificateID, businessID id.BusinessID, fileID, password string, source Source, serial, thumbprint string, issuedAt, expiresAt, now time.Time) *Certificate {
	return &Certificate{
		ID:                certID,
		BusinessID:        businessID,
		FileID:            fileID,
		ContainerPassword: password,
		Source:            source,
		SerialNumber:      serial,
		Thumbprint:        thumbprint,
		IssuedAt:          issuedAt,
		ExpiresAt:         expiresAt,
		Status:            StatusPendingValidation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Install promotes the certificate to Installed and stamps the installation
// date. Legal from PendingValidation and Deactivated.
func (c *Certificate) Install(now time.Time) error {
	switch c.Status {
	case StatusPendingValidation, StatusDeactivated:
		c.Status = StatusInstalled
		c.InstalledAt = &now
		c.UpdatedAt = now
		return nil
	}
	return domerrors.Newf(domerrors.CodeInvalidStatusTransition,
		"certificate %s cannot move from %s to %s", c.ID, c.Status, StatusInstalled)
}

// Deactivate demotes an installed certificate. Legal only from Installed.
func (c *Certificate) Deactivate(now time.Time) error {
	if c.Status != StatusInstalled {
		return domerrors.Newf(domerrors.CodeInvalidStatusTransition,
			"certificate %s cannot move from %s to %s", c.ID, c.Status, StatusDeactivated)
	}
	c.Status = StatusDeactivated
	c.UpdatedAt = now
	return nil
}

// ExpiredAt reports whether the validity window has passed. Expiration is
// derived, never stored.
func (c *Certificate) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// EffectiveStatus folds derived expiration into the stored status.
func (c *Certificate) EffectiveStatus(now time.Time) Status {
	if c.ExpiredAt(now) {
		return StatusExpired
	}
	return c.Status
}
