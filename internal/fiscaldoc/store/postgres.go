package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
	txcontext "github.com/gregoritrentin/prospera-api-sub003/pkg/platform/tx"
)

// PostgresStore persists fiscal documents. Tax lines travel as JSONB; the
// claim guard is a conditional UPDATE so duplicate deliveries lose the race
// inside the database, not in application code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const docColumns = `id, business_id, person_id, city_code, series, number,
	issue_date, competence_date, service_description, taxes,
	service_cents, unconditional_discount_cents, conditional_discount_cents,
	calculation_base_cents, net_cents, status, protocol, document_number,
	rejection_reason, transmission_attempts, cancel_reason, substituted_by,
	substitution_reason, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, doc *fiscaldoc.Document) error {
	taxes, err := json.Marshal(doc.Taxes)
	if err != nil {
		return fmt.Errorf("encode tax lines: %w", err)
	}
	var substitutedBy any
	if doc.SubstitutedBy != nil {
		substitutedBy = uuid.UUID(*doc.SubstitutedBy)
	}

	query := `
		INSERT INTO fiscal_documents (` + docColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (id) DO UPDATE SET
			status                = EXCLUDED.status,
			protocol              = EXCLUDED.protocol,
			document_number       = EXCLUDED.document_number,
			rejection_reason      = EXCLUDED.rejection_reason,
			transmission_attempts = EXCLUDED.transmission_attempts,
			cancel_reason         = EXCLUDED.cancel_reason,
			substituted_by        = EXCLUDED.substituted_by,
			substitution_reason   = EXCLUDED.substitution_reason,
			updated_at            = EXCLUDED.updated_at
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(doc.ID), uuid.UUID(doc.BusinessID), uuid.UUID(doc.PersonID),
		doc.CityCode.String(), doc.Series, doc.Number,
		doc.IssueDate, doc.CompetenceDate, doc.ServiceDescription, taxes,
		doc.Amounts.ServiceCents, doc.Amounts.UnconditionalDiscountCents,
		doc.Amounts.ConditionalDiscountCents, doc.Amounts.CalculationBaseCents,
		doc.Amounts.NetCents, string(doc.Status), doc.Protocol, doc.DocumentNumber,
		doc.RejectionReason, doc.TransmissionAttempts, doc.CancelReason,
		substitutedBy, doc.SubstitutionReason, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save fiscal document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, docID id.DocumentID) (*fiscaldoc.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM fiscal_documents WHERE id = $1`, uuid.UUID(docID))
	return scanDocument(row)
}

// Claim is the Queued -> Transmitting guard. The WHERE clause makes the
// transition conditional: only one concurrent consumer's UPDATE matches.
func (s *PostgresStore) Claim(ctx context.Context, docID id.DocumentID, now time.Time) (*fiscaldoc.Document, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE fiscal_documents SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(fiscaldoc.StatusTransmitting), now, uuid.UUID(docID), string(fiscaldoc.StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("claim fiscal document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim fiscal document: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, docID); errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrInvalidState
	}
	return s.Get(ctx, docID)
}

func scanDocument(row *sql.Row) (*fiscaldoc.Document, error) {
	var (
		doc           fiscaldoc.Document
		docID         uuid.UUID
		businessID    uuid.UUID
		personID      uuid.UUID
		cityCode      string
		taxes         []byte
		status        string
		substitutedBy uuid.NullUUID
	)
	err := row.Scan(
		&docID, &businessID, &personID, &cityCode, &doc.Series, &doc.Number,
		&doc.IssueDate, &doc.CompetenceDate, &doc.ServiceDescription, &taxes,
		&doc.Amounts.ServiceCents, &doc.Amounts.UnconditionalDiscountCents,
		&doc.Amounts.ConditionalDiscountCents, &doc.Amounts.CalculationBaseCents,
		&doc.Amounts.NetCents, &status, &doc.Protocol, &doc.DocumentNumber,
		&doc.RejectionReason, &doc.TransmissionAttempts, &doc.CancelReason,
		&substitutedBy, &doc.SubstitutionReason, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan fiscal document: %w", err)
	}

	doc.ID = id.DocumentID(docID)
	doc.BusinessID = id.BusinessID(businessID)
	doc.PersonID = id.PersonID(personID)
	doc.CityCode = id.CityCode(cityCode)
	doc.Status = fiscaldoc.Status(status)
	if substitutedBy.Valid {
		sub := id.DocumentID(substitutedBy.UUID)
		doc.SubstitutedBy = &sub
	}
	if len(taxes) > 0 {
		if err := json.Unmarshal(taxes, &doc.Taxes); err != nil {
			return nil, fmt.Errorf("decode tax lines: %w", err)
		}
	}
	return &doc, nil
}
