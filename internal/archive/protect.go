package archive

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// Protector wraps an output stream with symmetric password protection.
// The archive pipeline only sees this contract; the cipher choice stays
// an implementation detail.
type Protector interface {
	Protect(w io.Writer, password string) (io.WriteCloser, error)
	Suffix() string
}

// AgeProtector encrypts the whole container with an age scrypt passphrase
// recipient. The result is decryptable by the standard age CLI given the
// same password, then extractable by any zip tool.
type AgeProtector struct{}

func (AgeProtector) Protect(w io.Writer, password string) (io.WriteCloser, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("failed to derive passphrase recipient: %w", err)
	}

	wc, err := age.Encrypt(w, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}

	return wc, nil
}

func (AgeProtector) Suffix() string {
	return ".age"
}
