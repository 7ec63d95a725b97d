// Package provider holds the per-city transmission configuration. New
// municipalities are onboarded by adding configuration rows; the pipeline
// itself never changes per city.
package provider

import (
	"time"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Configuration parameterizes transmission for one municipality. Immutable
// reference data: created by an administrative flow, read-heavy here.
type Configuration struct {
	CityCode  id.CityCode
	StateCode string

	// Provider tags the protocol implementation and version to use, e.g.
	// "abrasf-2.04" or "ginfes-3.1". It selects the transmitter.
	Provider string

	SandboxURL    string
	ProductionURL string
	Timeout       time.Duration

	// Extensions carries city-specific quirks (field renames, envelope
	// switches) without touching the pipeline core.
	Extensions map[string]string
}

// Extension returns a quirk value and whether it is set.
func (c *Configuration) Extension(key string) (string, bool) {
	v, ok := c.Extensions[key]
	return v, ok
}

// Endpoint resolves the URL for the given environment. Sandbox is optional
// per city; asking for an unconfigured sandbox is an error.
func (c *Configuration) Endpoint(env id.Environment) (string, error) {
	switch env {
	case id.EnvironmentProduction:
		return c.ProductionURL, nil
	case id.EnvironmentSandbox:
		if c.SandboxURL == "" {
			return "", domerrors.Newf(domerrors.CodeProviderNotFound,
				"city %s has no sandbox endpoint configured", c.CityCode)
		}
		return c.SandboxURL, nil
	}
	return "", domerrors.Newf(domerrors.CodeInvalidInput, "unknown environment %q", env)
}
