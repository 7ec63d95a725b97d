package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// ids must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDocumentID("")
		require.Error(t, err)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDocumentID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseDocumentID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		docID, err := ParseDocumentID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, DocumentID(validUUID), docID)
	})

	t.Run("all parse functions agree on what is valid", func(t *testing.T) {
		inputs := []string{"", "invalid", uuid.Nil.String(), uuid.NewString()}
		for _, input := range inputs {
			_, errBusiness := ParseBusinessID(input)
			_, errPerson := ParsePersonID(input)
			_, errCert := ParseCertificateID(input)
			_, errDoc := ParseDocumentID(input)
			_, errJob := ParseJobID(input)

			assert.Equal(t, errBusiness == nil, errPerson == nil, "input %q", input)
			assert.Equal(t, errBusiness == nil, errCert == nil, "input %q", input)
			assert.Equal(t, errBusiness == nil, errDoc == nil, "input %q", input)
			assert.Equal(t, errBusiness == nil, errJob == nil, "input %q", input)
		}
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	certID := CertificateID(uuid.New())
	docID := DocumentID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ CertificateID = docID   // compile error
	// var _ DocumentID = certID     // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(certID), uuid.UUID(docID))
}

// TestParseID_SecurityInvariants validates trust boundary parsing: ids arrive
// from queue records and external callers, so hostile input must be rejected
// cleanly.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"sql injection attempt", "'; DROP TABLE fiscal_documents;--"},
		{"path traversal attempt", "../../../etc/passwd"},
		{"oversized input", strings.Repeat("a", 4096)},
		{"embedded null byte", "550e8400-e29b-41d4-a716-446655440000\x00"},
		{"whitespace padding", "  550e8400-e29b-41d4-a716-446655440000  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocumentID(tt.input)
			require.Error(t, err)
			assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
		})
	}
}

// TestCityCode validates the 7-digit municipality code primitive.
func TestCityCode(t *testing.T) {
	t.Run("accepts a 7-digit code", func(t *testing.T) {
		code, err := ParseCityCode("3550308")
		require.NoError(t, err)
		assert.Equal(t, "3550308", code.String())
	})

	t.Run("rejects wrong length and non-digits", func(t *testing.T) {
		for _, input := range []string{"", "355030", "35503080", "35S0308", "3550-08"} {
			_, err := ParseCityCode(input)
			require.Error(t, err, "input %q", input)
			assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
		}
	})
}

// TestEnvironment validates environment parsing.
func TestEnvironment(t *testing.T) {
	for _, input := range []string{"production", "sandbox"} {
		env, err := ParseEnvironment(input)
		require.NoError(t, err)
		assert.Equal(t, input, env.String())
	}

	_, err := ParseEnvironment("staging")
	require.Error(t, err)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
}
