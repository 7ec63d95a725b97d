// Package transmission drives fiscal documents from Queued to a terminal
// state: it signs the rendered payload with the business's installed
// certificate and calls the municipality's endpoint, retrying transient
// failures with bounded backoff.
package transmission

import (
	"context"

	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	"github.com/gregoritrentin/prospera-api-sub003/internal/provider"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Request is what a transmitter sends to a government endpoint.
type Request struct {
	Endpoint string
	Payload  []byte
	// Signature is the detached signature over Payload, produced with the
	// business's installed certificate.
	Signature []byte
	// Thumbprint identifies the signing certificate to the endpoint.
	Thumbprint string
	// Extensions carries the city-specific quirks from the provider
	// configuration.
	Extensions map[string]string
}

// Result is the interpreted government response. Transport failures and
// timeouts surface as errors from Transmit, not as a Result.
type Result struct {
	// Authorization facts; meaningful when Rejected is false.
	Protocol       string
	DocumentNumber string

	// Rejected marks a terminal business-rule rejection.
	Rejected        bool
	RejectionCode   string
	RejectionReason string
}

// Transmitter speaks one city protocol version. The wire format is the
// transmitter's business alone; the pipeline only sees Request and Result.
type Transmitter interface {
	Transmit(ctx context.Context, req Request) (*Result, error)
}

// TransmitterRegistry resolves the transmitter for a provider tag.
type TransmitterRegistry struct {
	transmitters map[string]Transmitter
}

func NewTransmitterRegistry() *TransmitterRegistry {
	return &TransmitterRegistry{transmitters: make(map[string]Transmitter)}
}

// Register binds a provider tag to its transmitter.
func (r *TransmitterRegistry) Register(providerTag string, t Transmitter) {
	r.transmitters[providerTag] = t
}

// For returns the transmitter for a provider tag.
func (r *TransmitterRegistry) For(providerTag string) (Transmitter, error) {
	t, ok := r.transmitters[providerTag]
	if !ok {
		return nil, domerrors.Newf(domerrors.CodeProviderNotFound,
			"no transmitter registered for provider %q", providerTag)
	}
	return t, nil
}

// PayloadRenderer produces the city/version-specific payload for a document.
// Opaque to the pipeline.
type PayloadRenderer interface {
	Render(ctx context.Context, doc *fiscaldoc.Document, cfg *provider.Configuration) ([]byte, error)
}

// Signer produces a detached signature over the payload using the PKCS#12
// container of the installed certificate.
type Signer interface {
	Sign(payload, container []byte, password string) ([]byte, error)
}

// DocumentRenderer generates the human-readable rendition after
// authorization. External collaborator; failures never affect the document's
// terminal state.
type DocumentRenderer interface {
	RenderAuthorized(ctx context.Context, doc *fiscaldoc.Document) (fileID string, err error)
}

// Translator localizes user-facing messages. Never consulted for control
// flow.
type Translator interface {
	Translate(key, language string, params map[string]string) string
}
