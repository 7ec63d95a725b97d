package transmission

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"software.sslmate.com/src/go-pkcs12"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// PKCS12Signer opens the certificate container and produces a detached
// SHA-256 signature over the payload. Municipal protocols wrap this
// signature into their own envelope; that wrapping belongs to the
// transmitter.
type PKCS12Signer struct{}

func NewPKCS12Signer() *PKCS12Signer { return &PKCS12Signer{} }

func (s *PKCS12Signer) Sign(payload, container []byte, password string) ([]byte, error) {
	key, _, _, err := pkcs12.DecodeChain(container, password)
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeCertificateValidationFailed,
			"open container for signing", err)
	}

	digest := sha256.Sum256(payload)
	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
		if err != nil {
			return nil, domerrors.Wrap(domerrors.CodeCertificateValidationFailed, "sign payload", err)
		}
		return sig, nil
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, k, digest[:])
		if err != nil {
			return nil, domerrors.Wrap(domerrors.CodeCertificateValidationFailed, "sign payload", err)
		}
		return sig, nil
	}
	return nil, domerrors.New(domerrors.CodeCertificateValidationFailed,
		"container key type is not supported for signing")
}
