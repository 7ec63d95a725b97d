package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// PostgresStore reads city configurations. The table is written by the
// administrative flow only; this store never mutates it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCityCode(ctx context.Context, cityCode id.CityCode) (*Configuration, error) {
	var (
		cfg        Configuration
		code       string
		timeoutMS  int64
		extensions []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT city_code, state_code, provider, sandbox_url, production_url, timeout_ms, extensions
		FROM city_providers WHERE city_code = $1
	`, cityCode.String()).Scan(
		&code, &cfg.StateCode, &cfg.Provider, &cfg.SandboxURL, &cfg.ProductionURL, &timeoutMS, &extensions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find city provider: %w", err)
	}

	cfg.CityCode = id.CityCode(code)
	cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if len(extensions) > 0 {
		if err := json.Unmarshal(extensions, &cfg.Extensions); err != nil {
			return nil, fmt.Errorf("decode provider extensions: %w", err)
		}
	}
	return &cfg, nil
}
