// Package token issues and verifies per-agent vault bearer tokens. A
// token is "prefix.secret": the prefix is the public lookup key persisted
// in the clear, the secret half exists only in the issuance response. At
// rest only a salted scrypt hash of the full token is kept.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// PrefixTag marks every vault access token prefix.
const PrefixTag = "avt_"

const (
	prefixRandBytes = 4
	secretBytes     = 32
	saltBytes       = 16
)

// Params are the scrypt cost parameters used at hash time. Verification
// is parameterized by the stored hash (salt and output length travel with
// it), so these can be raised later without breaking previously issued
// tokens.
type Params struct {
	N      int
	R      int
	P      int
	KeyLen int
}

// DefaultParams matches the cost profile the stored hashes were created
// with.
var DefaultParams = Params{N: 16384, R: 8, P: 1, KeyLen: 32}

// Generated is the one-time issuance result. Token is never stored.
type Generated struct {
	Token       string
	TokenPrefix string
}

// Generate creates a fresh access token. The prefix carries no
// authentication value by itself; it is purely a lookup key.
func Generate() (Generated, error) {
	randPart := make([]byte, prefixRandBytes)
	if _, err := rand.Read(randPart); err != nil {
		return Generated{}, fmt.Errorf("generate token prefix: %w", err)
	}
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return Generated{}, fmt.Errorf("generate token secret: %w", err)
	}

	prefix := PrefixTag + hex.EncodeToString(randPart)
	tok := prefix + "." + base64.RawURLEncoding.EncodeToString(secret)
	return Generated{Token: tok, TokenPrefix: prefix}, nil
}

// ParsePrefix extracts the public prefix from a presented token, or ""
// if the token is not even shaped like one of ours.
func ParsePrefix(tok string) string {
	raw := strings.TrimSpace(tok)
	idx := strings.IndexByte(raw, '.')
	if idx <= 0 {
		return ""
	}
	prefix := raw[:idx]
	if !strings.HasPrefix(prefix, PrefixTag) {
		return ""
	}
	return prefix
}

// Hash derives the stored form "scrypt$<saltB64>$<hashB64>" with a fresh
// random salt per call.
func Hash(tok string) (string, error) {
	return HashWithParams(tok, DefaultParams)
}

// HashWithParams is Hash with explicit cost parameters.
func HashWithParams(tok string, p Params) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	derived, err := scrypt.Key([]byte(tok), salt, p.N, p.R, p.P, p.KeyLen)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return fmt.Sprintf("scrypt$%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(derived)), nil
}

// Verify recomputes scrypt over the candidate token with the stored salt
// and compares in constant time. Any malformed stored value verifies as
// false rather than returning an error: a corrupt hash row must behave
// exactly like a wrong token.
func Verify(tok, stored string) bool {
	return VerifyWithParams(tok, stored, DefaultParams)
}

// VerifyWithParams is Verify with explicit cost parameters.
func VerifyWithParams(tok, stored string, p Params) bool {
	parts := strings.Split(strings.TrimSpace(stored), "$")
	if len(parts) != 3 || parts[0] != "scrypt" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(expected) == 0 {
		return false
	}
	derived, err := scrypt.Key([]byte(tok), salt, p.N, p.R, p.P, len(expected))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, expected) == 1
}
