package domain

import (
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// CityCode is the 7-digit IBGE municipality code a fiscal document is issued
// under. It is a domain primitive validated at parse time so the transmission
// pipeline never sees a malformed code.
type CityCode string

// ParseCityCode validates and returns a CityCode.
func ParseCityCode(s string) (CityCode, error) {
	if len(s) != 7 {
		return "", domerrors.New(domerrors.CodeInvalidInput, "city code must have 7 digits: "+s)
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return "", domerrors.New(domerrors.CodeInvalidInput, "city code must be numeric: "+s)
		}
	}
	return CityCode(s), nil
}

func (c CityCode) String() string { return string(c) }

func (c CityCode) IsNil() bool { return c == "" }

// Environment selects which provider endpoint a transmission targets.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// ParseEnvironment validates and returns an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvironmentProduction, EnvironmentSandbox:
		return Environment(s), nil
	}
	return "", domerrors.New(domerrors.CodeInvalidInput, "unknown environment: "+s)
}

func (e Environment) String() string { return string(e) }
