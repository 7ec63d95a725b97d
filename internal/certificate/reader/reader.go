// Package reader extracts identity facts from PKCS#12 certificate containers.
package reader

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Info holds the identity facts extracted from a container's leaf certificate.
type Info struct {
	SerialNumber string
	// Thumbprint is the uppercase hex SHA-1 digest of the DER encoding.
	Thumbprint string
	NotBefore  time.Time
	NotAfter   time.Time
	// HasCAChain reports whether the container bundled CA certificates.
	// Chain-of-trust enforcement is a policy decision made by the caller.
	HasCAChain bool
}

// Reader parses PKCS#12 containers. Stateless and safe for concurrent use.
type Reader struct{}

func New() *Reader { return &Reader{} }

// Read decodes the container with the supplied password and returns the leaf
// certificate's identity facts. It performs no chain-of-trust or revocation
// check.
func (r *Reader) Read(container []byte, password string) (*Info, error) {
	if len(container) == 0 {
		return nil, domerrors.New(domerrors.CodeCertificateFormatInvalid, "certificate container is empty")
	}

	_, cert, caCerts, err := pkcs12.DecodeChain(container, password)
	if err != nil {
		return nil, classify(err)
	}
	if cert == nil {
		return nil, domerrors.New(domerrors.CodeCertificateFormatInvalid, "container holds no certificate bag")
	}

	return describe(cert, len(caCerts) > 0), nil
}

func describe(cert *x509.Certificate, hasChain bool) *Info {
	sum := sha1.Sum(cert.Raw)
	return &Info{
		SerialNumber: strings.ToUpper(cert.SerialNumber.Text(16)),
		Thumbprint:   strings.ToUpper(hex.EncodeToString(sum[:])),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		HasCAChain:   hasChain,
	}
}

// classify maps pkcs12 decode failures onto the three failure kinds callers
// branch on. A wrong password must never surface as a format error.
func classify(err error) error {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return domerrors.Wrap(domerrors.CodeCertificatePasswordInvalid, "container password is incorrect", err)
	}

	var structural asn1.StructuralError
	var syntax asn1.SyntaxError
	if errors.As(err, &structural) || errors.As(err, &syntax) {
		return domerrors.Wrap(domerrors.CodeCertificateFormatInvalid, "container is not valid PKCS#12", err)
	}
	if strings.Contains(err.Error(), "asn1") || strings.Contains(err.Error(), "malformed") {
		return domerrors.Wrap(domerrors.CodeCertificateFormatInvalid, "container is not valid PKCS#12", err)
	}

	return domerrors.Wrap(domerrors.CodeCertificateValidationFailed, "container could not be read", err)
}
