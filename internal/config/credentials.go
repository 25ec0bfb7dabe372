package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when required API keys are absent.
var ErrMissingCredentials = errors.New("BINANCE_API_KEY/BINANCE_API_SECRET not set")

// Credentials holds exchange API keys. Public market data needs none.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether no key material was provided.
func (c Credentials) Empty() bool { return c.APIKey == "" && c.APISecret == "" }

// LoadCredentials reads keys from the environment, loading .env first when present.
func LoadCredentials(required bool) (Credentials, error) {
	_ = godotenv.Load() // best-effort
	creds := Credentials{
		APIKey:    strings.TrimSpace(os.Getenv("BINANCE_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("BINANCE_API_SECRET")),
	}
	if required && (creds.APIKey == "" || creds.APISecret == "") {
		return creds, ErrMissingCredentials
	}
	return creds, nil
}
