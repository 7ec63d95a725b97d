package transmission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/gregoritrentin/prospera-api-sub003/internal/transmission"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// The JSON gateway bridge must keep the transient/terminal split intact:
// 5xx responses come back as errors (retryable), rejection payloads come
// back as Results (terminal).
type HTTPTransmitterSuite struct {
	suite.Suite
}

func TestHTTPTransmitterSuite(t *testing.T) {
	suite.Run(t, new(HTTPTransmitterSuite))
}

func (s *HTTPTransmitterSuite) request(endpoint string) transmission.Request {
	return transmission.Request{
		Endpoint:   endpoint,
		Payload:    []byte(`{"document_id":"x"}`),
		Signature:  []byte("sig"),
		Thumbprint: "AABBCC",
		Extensions: map[string]string{"X-Versao": "2.04"},
	}
}

// TestTransmit tests response interpretation against a fake gateway.
func (s *HTTPTransmitterSuite) TestTransmit() {
	ctx := context.Background()

	s.Run("authorized response yields protocol and number", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Equal("2.04", r.Header.Get("X-Versao"))

			var envelope struct {
				Payload    json.RawMessage `json:"payload"`
				Signature  string          `json:"signature"`
				Thumbprint string          `json:"thumbprint"`
			}
			s.Require().NoError(json.NewDecoder(r.Body).Decode(&envelope))
			s.Equal("AABBCC", envelope.Thumbprint)

			json.NewEncoder(w).Encode(map[string]any{
				"authorized":      true,
				"protocol":        "PROT-9",
				"document_number": "2026/000009",
			})
		}))
		defer server.Close()

		result, err := transmission.NewHTTPTransmitter(server.Client()).Transmit(ctx, s.request(server.URL))
		s.Require().NoError(err)
		s.False(result.Rejected)
		s.Equal("PROT-9", result.Protocol)
		s.Equal("2026/000009", result.DocumentNumber)
	})

	s.Run("rejection payload is a terminal result, not an error", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"authorized":       false,
				"rejection_code":   "E160",
				"rejection_reason": "código de serviço inválido",
			})
		}))
		defer server.Close()

		result, err := transmission.NewHTTPTransmitter(server.Client()).Transmit(ctx, s.request(server.URL))
		s.Require().NoError(err)
		s.True(result.Rejected)
		s.Equal("E160", result.RejectionCode)
	})

	s.Run("5xx is a retryable error so the processor tries again", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := transmission.NewHTTPTransmitter(server.Client()).Transmit(ctx, s.request(server.URL))
		s.Require().Error(err)
		s.True(domerrors.Retryable(err))
	})

	s.Run("other 4xx is a coded refusal the processor must not retry", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := transmission.NewHTTPTransmitter(server.Client()).Transmit(ctx, s.request(server.URL))
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeTransmissionRejected))
		s.False(domerrors.Retryable(err))
	})
}
