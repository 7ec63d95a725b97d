package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
	txcontext "github.com/gregoritrentin/prospera-api-sub003/pkg/platform/tx"
)

// PostgresStore persists certificates. A partial unique index on
// (business_id) WHERE status = 'installed' backs the single-installed
// invariant at the database level as well.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const certColumns = `id, business_id, file_id, container_password, source, serial_number,
	thumbprint, issued_at, expires_at, installed_at, status, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, cert *certificate.Certificate) error {
	query := `
		INSERT INTO certificates (` + certColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			installed_at = EXCLUDED.installed_at,
			status       = EXCLUDED.status,
			updated_at   = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(cert.ID), uuid.UUID(cert.BusinessID), cert.FileID, cert.ContainerPassword,
		string(cert.Source), cert.SerialNumber, cert.Thumbprint,
		cert.IssuedAt, cert.ExpiresAt, cert.InstalledAt,
		string(cert.Status), cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save certificate: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

// isUniqueViolation reports a postgres 23505. The only unique constraint
// beyond the primary key is the certificates_one_installed partial index, so
// this means a concurrent writer installed a certificate first.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) Get(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE id = $1`, uuid.UUID(certID))
	return scanCertificate(row)
}

func (s *PostgresStore) ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*certificate.Certificate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE business_id = $1 ORDER BY created_at`, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []*certificate.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindInstalled(ctx context.Context, businessID id.BusinessID) (*certificate.Certificate, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE business_id = $1 AND status = $2`,
		uuid.UUID(businessID), string(certificate.StatusInstalled))
	return scanCertificate(row)
}

// Activate runs demote-all + promote-one inside a single transaction. Two
// independent writes here would be a lost-update race under concurrent
// activation.
func (s *PostgresStore) Activate(ctx context.Context, businessID id.BusinessID, certID id.CertificateID, now time.Time) (*certificate.Certificate, error) {
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := s.execer(ctx)

		_, err := exec.ExecContext(ctx, `
			UPDATE certificates SET status = $1, updated_at = $2
			WHERE business_id = $3 AND status = $4 AND id <> $5
		`, string(certificate.StatusDeactivated), now,
			uuid.UUID(businessID), string(certificate.StatusInstalled), uuid.UUID(certID))
		if err != nil {
			return fmt.Errorf("deactivate installed certificates: %w", err)
		}

		res, err := exec.ExecContext(ctx, `
			UPDATE certificates SET status = $1, installed_at = $2, updated_at = $2
			WHERE id = $3 AND business_id = $4
		`, string(certificate.StatusInstalled), now, uuid.UUID(certID), uuid.UUID(businessID))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("install certificate: %w", sentinel.ErrConflict)
			}
			return fmt.Errorf("install certificate: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("install certificate: %w", err)
		}
		if affected == 0 {
			return sentinel.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, certID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*certificate.Certificate, error) {
	var (
		cert        certificate.Certificate
		certID      uuid.UUID
		businessID  uuid.UUID
		source      string
		status      string
		installedAt sql.NullTime
	)
	err := row.Scan(
		&certID, &businessID, &cert.FileID, &cert.ContainerPassword, &source,
		&cert.SerialNumber, &cert.Thumbprint, &cert.IssuedAt, &cert.ExpiresAt,
		&installedAt, &status, &cert.CreatedAt, &cert.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	cert.ID = id.CertificateID(certID)
	cert.BusinessID = id.BusinessID(businessID)
	cert.Source = certificate.Source(source)
	cert.Status = certificate.Status(status)
	if installedAt.Valid {
		t := installedAt.Time
		cert.InstalledAt = &t
	}
	return &cert, nil
}
