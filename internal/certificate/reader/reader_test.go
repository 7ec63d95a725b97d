package reader

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"software.sslmate.com/src/go-pkcs12"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Container parsing is the trust boundary for uploaded certificates: the
// three failure kinds (format, password, validation) drive distinct caller
// behavior, so the classification is pinned down here against real PKCS#12
// bytes rather than mocks.
type ReaderSuite struct {
	suite.Suite
	reader *Reader

	container  []byte
	password   string
	serial     *big.Int
	thumbprint string
	notBefore  time.Time
	notAfter   time.Time
}

func TestReaderSuite(t *testing.T) {
	suite.Run(t, new(ReaderSuite))
}

func (s *ReaderSuite) SetupSuite() {
	s.reader = New()
	s.password = "segredo-do-pfx"
	s.serial = big.NewInt(0x1A2B3C4D)
	s.notBefore = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.notAfter = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)

	template := &x509.Certificate{
		SerialNumber:          s.serial,
		Subject:               pkix.Name{CommonName: "PROSPERA SERVICOS LTDA:11222333000181"},
		NotBefore:             s.notBefore,
		NotAfter:              s.notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	s.Require().NoError(err)

	cert, err := x509.ParseCertificate(der)
	s.Require().NoError(err)

	sum := sha1.Sum(cert.Raw)
	s.thumbprint = strings.ToUpper(hex.EncodeToString(sum[:]))

	s.container, err = pkcs12.Modern2023.Encode(key, cert, nil, s.password)
	s.Require().NoError(err)
}

// TestRead tests extraction of identity facts from a valid container.
func (s *ReaderSuite) TestRead() {
	s.Run("extracts serial, thumbprint and validity window", func() {
		info, err := s.reader.Read(s.container, s.password)
		s.Require().NoError(err)

		s.Equal(strings.ToUpper(s.serial.Text(16)), info.SerialNumber)
		s.Equal(s.thumbprint, info.Thumbprint)
		s.True(info.NotBefore.Equal(s.notBefore))
		s.True(info.NotAfter.Equal(s.notAfter))
		s.False(info.HasCAChain)
	})

	s.Run("reading the same container twice yields identical facts", func() {
		first, err := s.reader.Read(s.container, s.password)
		s.Require().NoError(err)
		second, err := s.reader.Read(s.container, s.password)
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("reports a bundled CA chain", func() {
		caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		s.Require().NoError(err)
		caTemplate := &x509.Certificate{
			SerialNumber:          big.NewInt(1),
			Subject:               pkix.Name{CommonName: "AC Teste"},
			NotBefore:             s.notBefore,
			NotAfter:              s.notAfter,
			IsCA:                  true,
			KeyUsage:              x509.KeyUsageCertSign,
			BasicConstraintsValid: true,
		}
		caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
		s.Require().NoError(err)
		caCert, err := x509.ParseCertificate(caDER)
		s.Require().NoError(err)

		leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		s.Require().NoError(err)
		leafTemplate := &x509.Certificate{
			SerialNumber: big.NewInt(2),
			Subject:      pkix.Name{CommonName: "EMPRESA COM CADEIA"},
			NotBefore:    s.notBefore,
			NotAfter:     s.notAfter,
		}
		leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caTemplate, &leafKey.PublicKey, caKey)
		s.Require().NoError(err)
		leafCert, err := x509.ParseCertificate(leafDER)
		s.Require().NoError(err)

		container, err := pkcs12.Modern2023.Encode(leafKey, leafCert, []*x509.Certificate{caCert}, s.password)
		s.Require().NoError(err)

		info, err := s.reader.Read(container, s.password)
		s.Require().NoError(err)
		s.True(info.HasCAChain)
	})
}

// TestReadFailures tests the error classification.
func (s *ReaderSuite) TestReadFailures() {
	s.Run("wrong password is a password error, never a format error", func() {
		_, err := s.reader.Read(s.container, "senha-errada")
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeCertificatePasswordInvalid))
		s.False(domerrors.HasCode(err, domerrors.CodeCertificateFormatInvalid))
	})

	s.Run("garbage bytes are a format error", func() {
		_, err := s.reader.Read([]byte("definitely not a pfx"), s.password)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeCertificateFormatInvalid))
	})

	s.Run("empty container is a format error", func() {
		_, err := s.reader.Read(nil, s.password)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeCertificateFormatInvalid))
	})

	s.Run("truncated container is a format error", func() {
		_, err := s.reader.Read(s.container[:len(s.container)/3], s.password)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeCertificateFormatInvalid))
	})
}
