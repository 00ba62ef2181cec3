package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MasterKeySize is the required decoded length of the vault master key.
const MasterKeySize = 32

var (
	// ErrNotConfigured means no master key was supplied. Every vault
	// route fails closed on it.
	ErrNotConfigured = errors.New("vault master key not configured")

	// ErrDecryptFailed is the single undifferentiated error for any
	// decryption failure: wrong agent, wrong handle, wrong type, corrupt
	// ciphertext or tampered tag all look the same to callers.
	ErrDecryptFailed = errors.New("vault decrypt failed")
)

// MasterKey is the process-wide root secret. It is supplied once from
// configuration, never persisted, and never rotated in place.
type MasterKey struct {
	key []byte
}

// ParseMasterKey validates a base64-encoded master key. base64url input is
// accepted and normalized; missing padding is tolerated. An empty value
// returns ErrNotConfigured; anything that does not decode to exactly 32
// bytes is a typed configuration error, not a panic later on.
func ParseMasterKey(encoded string) (MasterKey, error) {
	raw := strings.TrimSpace(encoded)
	if raw == "" {
		return MasterKey{}, ErrNotConfigured
	}

	s := strings.ReplaceAll(raw, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	for len(s)%4 != 0 {
		s += "="
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return MasterKey{}, fmt.Errorf("vault master key is not valid base64: %w", err)
	}
	if len(decoded) != MasterKeySize {
		return MasterKey{}, fmt.Errorf("vault master key must decode to %d bytes, got %d (generate with: openssl rand -base64 32)", MasterKeySize, len(decoded))
	}
	return MasterKey{key: decoded}, nil
}

// Configured reports whether a usable key is present.
func (m MasterKey) Configured() bool {
	return len(m.key) == MasterKeySize
}

func (m MasterKey) bytes() ([]byte, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}
	return m.key, nil
}
