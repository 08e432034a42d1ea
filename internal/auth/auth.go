// Package auth owns the persisted remote-storage credentials. Tokens are
// stored as opaque JSON files under ~/.packrat and never leave this
// package beyond a short-lived token source.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"packrat/internal/config"

	"golang.org/x/oauth2"
)

var (
	// ErrCredentialsMissing means the provider's client-identity file was
	// never supplied; a configuration error, not an auth failure.
	ErrCredentialsMissing = errors.New("provider credentials file missing")

	// ErrAuthRequired means no usable token exists and interactive
	// authorization is needed before upload can proceed.
	ErrAuthRequired = errors.New("authorization required")
)

// CheckBootstrap verifies the provider's client-identity file exists. The
// engine calls this at submit time so a misconfigured upload job fails
// before any archiving starts.
func CheckBootstrap(provider string) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	file := provider + "_credentials.json"
	if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
		return fmt.Errorf("%w: place %s in %s", ErrCredentialsMissing, file, dir)
	}

	return nil
}

func saveToken(name string, token *oauth2.Token) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

func loadToken(name string) (*oauth2.Token, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return &token, nil
}
