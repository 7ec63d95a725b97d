package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	"github.com/gregoritrentin/prospera-api-sub003/internal/provider"
	"github.com/gregoritrentin/prospera-api-sub003/internal/storage"
)

// JSONPayloadRenderer renders a provider-neutral payload. Cities with their
// own envelope register a dedicated renderer; this one covers providers
// whose transmitter does the final wire formatting itself.
type JSONPayloadRenderer struct{}

func NewJSONPayloadRenderer() *JSONPayloadRenderer { return &JSONPayloadRenderer{} }

func (r *JSONPayloadRenderer) Render(_ context.Context, doc *fiscaldoc.Document, cfg *provider.Configuration) ([]byte, error) {
	payload := map[string]any{
		"document_id":     doc.ID.String(),
		"business_id":     doc.BusinessID.String(),
		"person_id":       doc.PersonID.String(),
		"city_code":       doc.CityCode.String(),
		"series":          doc.Series,
		"number":          doc.Number,
		"issue_date":      doc.IssueDate,
		"competence_date": doc.CompetenceDate,
		"description":     doc.ServiceDescription,
		"taxes":           doc.Taxes,
		"amounts":         doc.Amounts,
		"provider":        cfg.Provider,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("render payload: %w", err)
	}
	return data, nil
}

// BlobDocumentRenderer writes a plain-text rendition to blob storage. The
// real PDF generator is an external collaborator; this keeps the contract
// exercised end to end.
type BlobDocumentRenderer struct {
	blobs storage.BlobStore
}

func NewBlobDocumentRenderer(blobs storage.BlobStore) *BlobDocumentRenderer {
	return &BlobDocumentRenderer{blobs: blobs}
}

func (r *BlobDocumentRenderer) RenderAuthorized(ctx context.Context, doc *fiscaldoc.Document) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "NFS-e %s\n", doc.DocumentNumber)
	fmt.Fprintf(&b, "protocol: %s\n", doc.Protocol)
	fmt.Fprintf(&b, "series/number: %s/%d\n", doc.Series, doc.Number)
	fmt.Fprintf(&b, "net amount (cents): %d\n", doc.Amounts.NetCents)
	return r.blobs.Store(ctx, []byte(b.String()), "text/plain",
		fmt.Sprintf("nfse-%s.txt", doc.DocumentNumber))
}

// StaticTranslator resolves user-facing messages from an in-process catalog.
// The full translation service lives in the surrounding application.
type StaticTranslator struct {
	messages map[string]map[string]string
	log      *slog.Logger
}

func NewStaticTranslator(log *slog.Logger) *StaticTranslator {
	return &StaticTranslator{
		log: log,
		messages: map[string]map[string]string{
			"transmission.failed": {
				"pt-BR": "transmissão falhou após {attempts} tentativas",
				"en":    "transmission failed after {attempts} attempts",
			},
			"transmission.certificate_expired": {
				"pt-BR": "o certificado digital instalado está vencido",
				"en":    "the installed digital certificate has expired",
			},
		},
	}
}

func (t *StaticTranslator) Translate(key, language string, params map[string]string) string {
	byLanguage, ok := t.messages[key]
	if !ok {
		t.log.Warn("missing translation key", "key", key)
		return key
	}
	msg, ok := byLanguage[language]
	if !ok {
		msg = byLanguage["en"]
	}
	for name, value := range params {
		msg = strings.ReplaceAll(msg, "{"+name+"}", value)
	}
	return msg
}
