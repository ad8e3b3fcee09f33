// Package secrets manages the process-wide server_secret used by
// internal/identity, stored in the OS keychain with an environment-variable
// fallback. The value is read once at startup and never logged.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const service = "fingerprintd"
const secretAccount = "server_secret"
const envVar = "FINGERPRINTD_SERVER_SECRET"

// Store resolves and manages the server_secret.
type Store struct{}

// New returns a ready-to-use secret Store.
func New() *Store {
	return &Store{}
}

// Set stores the server_secret in the OS keychain.
func (s *Store) Set(secret string) error {
	return keyring.Set(service, secretAccount, secret)
}

// Get retrieves the server_secret, checking the OS keychain first and
// falling back to FINGERPRINTD_SERVER_SECRET.
func (s *Store) Get() (string, error) {
	secret, err := keyring.Get(service, secretAccount)
	if err == nil && secret != "" {
		return secret, nil
	}
	if val := os.Getenv(envVar); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("no server_secret found: not in keychain and %s not set", envVar)
}

// Delete removes the server_secret from the OS keychain.
func (s *Store) Delete() error {
	return keyring.Delete(service, secretAccount)
}

// ResolveRef parses a key reference and retrieves the secret it points at.
// Supported formats:
//   - "keyring://fingerprintd/server_secret" (preferred)
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/secret"
func (s *Store) ResolveRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "keyring://"):
		path := strings.TrimPrefix(ref, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != service || parts[1] == "" {
			return "", fmt.Errorf("invalid secret reference: %q (expected \"keyring://fingerprintd/server_secret\")", ref)
		}
		return s.Get()
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		if val := os.Getenv(name); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", name)
	case strings.HasPrefix(ref, "file://"):
		path := strings.TrimPrefix(ref, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file %q: %w", path, err)
		}
		val := strings.TrimSpace(string(data))
		if val == "" {
			return "", fmt.Errorf("secret file %q is empty", path)
		}
		return val, nil
	default:
		return "", fmt.Errorf("invalid secret reference format: %q (expected \"keyring://...\", \"env:VAR\", or \"file://...\")", ref)
	}
}
