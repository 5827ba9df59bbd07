package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	keychainService = "tether"
	tokenAccount    = "api_token"
	tokenEnvVar     = "TETHER_API_TOKEN"
)

// Keychain abstracts the platform secret store for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
// On macOS this is the Keychain (via the security CLI); elsewhere a
// restricted-permission secrets file under $XDG_DATA_HOME.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token protecting the management API,
// provisioning a fresh one on first use. TETHER_API_TOKEN overrides the
// stored token on all platforms.
func GetAPIToken(kc Keychain) (string, error) {
	if env := os.Getenv(tokenEnvVar); env != "" {
		return env, nil
	}

	if token, err := kc.Get(keychainService, tokenAccount); err == nil && token != "" {
		return token, nil
	}

	token := uuid.NewString()
	if err := kc.Set(keychainService, tokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}
