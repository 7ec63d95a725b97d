package domain

import (
	"github.com/google/uuid"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Typed identifiers for the fiscal core. Distinct types keep a certificate id
// from ever being passed where a document id is expected; the compiler does
// the checking.

type BusinessID uuid.UUID

type PersonID uuid.UUID

type CertificateID uuid.UUID

type DocumentID uuid.UUID

type JobID uuid.UUID

// NewBusinessID returns a fresh random business id.
func NewBusinessID() BusinessID { return BusinessID(uuid.New()) }

// NewPersonID returns a fresh random person id.
func NewPersonID() PersonID { return PersonID(uuid.New()) }

// NewCertificateID returns a fresh random certificate id.
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

// NewDocumentID returns a fresh random document id.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewJobID returns a fresh random job id.
func NewJobID() JobID { return JobID(uuid.New()) }

func (id BusinessID) String() string    { return uuid.UUID(id).String() }
func (id PersonID) String() string      { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string    { return uuid.UUID(id).String() }
func (id JobID) String() string         { return uuid.UUID(id).String() }

func (id BusinessID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PersonID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// ParseBusinessID validates and returns a BusinessID.
func ParseBusinessID(s string) (BusinessID, error) {
	u, err := parseUUID(s)
	return BusinessID(u), err
}

// ParsePersonID validates and returns a PersonID.
func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s)
	return PersonID(u), err
}

// ParseCertificateID validates and returns a CertificateID.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s)
	return CertificateID(u), err
}

// ParseDocumentID validates and returns a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

// ParseJobID validates and returns a JobID.
func ParseJobID(s string) (JobID, error) {
	u, err := parseUUID(s)
	return JobID(u), err
}

// parseUUID enforces the shared invariant: ids must be valid, non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, domerrors.New(domerrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domerrors.New(domerrors.CodeInvalidInput, "id is not a valid UUID: "+s)
	}
	if u == uuid.Nil {
		return uuid.Nil, domerrors.New(domerrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
