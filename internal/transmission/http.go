package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// HTTPTransmitter speaks to municipality gateways that accept the neutral
// JSON envelope over plain HTTP. Cities with bespoke SOAP envelopes get
// their own Transmitter registered under their provider tag.
type HTTPTransmitter struct {
	client *http.Client
}

func NewHTTPTransmitter(client *http.Client) *HTTPTransmitter {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransmitter{client: client}
}

type httpEnvelope struct {
	Payload    json.RawMessage `json:"payload"`
	Signature  string          `json:"signature"`
	Thumbprint string          `json:"thumbprint"`
}

type httpResponse struct {
	Authorized      bool   `json:"authorized"`
	Protocol        string `json:"protocol"`
	DocumentNumber  string `json:"document_number"`
	RejectionCode   string `json:"rejection_code"`
	RejectionReason string `json:"rejection_reason"`
}

func (t *HTTPTransmitter) Transmit(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(httpEnvelope{
		Payload:    req.Payload,
		Signature:  base64.StdEncoding.EncodeToString(req.Signature),
		Thumbprint: req.Thumbprint,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.Extensions {
		// Header quirks are the most common per-city extension.
		httpReq.Header.Set(key, value)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are the retryable class.
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300,
		resp.StatusCode == http.StatusUnprocessableEntity:
		var parsed httpResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if !parsed.Authorized {
			return &Result{
				Rejected:        true,
				RejectionCode:   parsed.RejectionCode,
				RejectionReason: parsed.RejectionReason,
			}, nil
		}
		return &Result{
			Protocol:       parsed.Protocol,
			DocumentNumber: parsed.DocumentNumber,
		}, nil
	default:
		// Gateway refused the submission itself (auth, payload shape);
		// retrying the same payload cannot succeed.
		return nil, domerrors.Newf(domerrors.CodeTransmissionRejected,
			"gateway refused the submission with status %d", resp.StatusCode)
	}
}
