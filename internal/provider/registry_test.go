package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// countingStore wraps the memory store to observe cache behavior.
type countingStore struct {
	*InMemoryStore
	lookups int
}

func (s *countingStore) FindByCityCode(ctx context.Context, cityCode id.CityCode) (*Configuration, error) {
	s.lookups++
	return s.InMemoryStore.FindByCityCode(ctx, cityCode)
}

// City configuration is what keeps the pipeline city-agnostic: an unknown
// city must fail fast with a dedicated code, and the cache must not serve
// stale entries past its TTL.
type RegistrySuite struct {
	suite.Suite
	store *countingStore

	saoPaulo Configuration
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = &countingStore{InMemoryStore: NewInMemoryStore()}
	s.saoPaulo = Configuration{
		CityCode:      id.CityCode("3550308"),
		StateCode:     "SP",
		Provider:      "abrasf-2.04",
		SandboxURL:    "https://homologacao.nfe.prefeitura.sp.gov.br/ws",
		ProductionURL: "https://nfe.prefeitura.sp.gov.br/ws",
		Timeout:       20 * time.Second,
		Extensions:    map[string]string{"X-Versao": "2.04"},
	}
	s.store.Put(s.saoPaulo)
}

func (s *RegistrySuite) SetupSubTest() {
	s.SetupTest()
}

// TestFindByCityCode tests lookup and the unknown-city failure mode.
func (s *RegistrySuite) TestFindByCityCode() {
	ctx := context.Background()

	s.Run("returns the configuration for a known city", func() {
		registry := NewRegistry(s.store, 0)
		cfg, err := registry.FindByCityCode(ctx, s.saoPaulo.CityCode)
		s.Require().NoError(err)
		s.Equal("abrasf-2.04", cfg.Provider)
		s.Equal("SP", cfg.StateCode)

		version, ok := cfg.Extension("X-Versao")
		s.True(ok)
		s.Equal("2.04", version)
	})

	s.Run("unknown city maps to the provider-not-found code", func() {
		registry := NewRegistry(s.store, 0)
		_, err := registry.FindByCityCode(ctx, id.CityCode("9999999"))
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeProviderNotFound))
	})
}

// TestCache tests the TTL cache in front of the store.
func (s *RegistrySuite) TestCache() {
	ctx := context.Background()

	s.Run("repeated lookups within the TTL hit the store once", func() {
		registry := NewRegistry(s.store, time.Minute)
		for range 3 {
			_, err := registry.FindByCityCode(ctx, s.saoPaulo.CityCode)
			s.Require().NoError(err)
		}
		s.Equal(1, s.store.lookups)
	})

	s.Run("entries past the TTL are refreshed from the store", func() {
		registry := NewRegistry(s.store, time.Minute)
		_, err := registry.FindByCityCode(ctx, s.saoPaulo.CityCode)
		s.Require().NoError(err)
		before := s.store.lookups

		registry.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err = registry.FindByCityCode(ctx, s.saoPaulo.CityCode)
		s.Require().NoError(err)
		s.Equal(before+1, s.store.lookups)
	})

	s.Run("zero TTL disables caching", func() {
		registry := NewRegistry(s.store, 0)
		for range 2 {
			_, err := registry.FindByCityCode(ctx, s.saoPaulo.CityCode)
			s.Require().NoError(err)
		}
		s.Equal(2, s.store.lookups)
	})
}

// TestResolveEndpoint tests environment-based endpoint selection.
func (s *RegistrySuite) TestResolveEndpoint() {
	registry := NewRegistry(s.store, 0)

	s.Run("production resolves to the production URL", func() {
		url, err := registry.ResolveEndpoint(&s.saoPaulo, id.EnvironmentProduction)
		s.Require().NoError(err)
		s.Equal(s.saoPaulo.ProductionURL, url)
	})

	s.Run("sandbox resolves to the sandbox URL when configured", func() {
		url, err := registry.ResolveEndpoint(&s.saoPaulo, id.EnvironmentSandbox)
		s.Require().NoError(err)
		s.Equal(s.saoPaulo.SandboxURL, url)
	})

	s.Run("missing sandbox endpoint is a provider-not-found error", func() {
		noSandbox := s.saoPaulo
		noSandbox.SandboxURL = ""
		_, err := registry.ResolveEndpoint(&noSandbox, id.EnvironmentSandbox)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeProviderNotFound))
	})
}
