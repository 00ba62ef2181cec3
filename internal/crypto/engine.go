// Package crypto implements the vault's at-rest encryption: HKDF-derived
// per-agent keys and AES-256-GCM with associated data binding each
// ciphertext to (agent, handle, type, key version). A ciphertext copied to
// a different agent or relabeled under a different handle is
// cryptographically unusable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeyVersion is stamped into every encrypted record so a future
	// master-key rotation scheme can coexist with old records.
	KeyVersion = 1

	gcmIVSize = 12

	agentKeySize = 32
)

// hkdfSalt provides domain separation for agent key derivation. Changing
// it invalidates every stored ciphertext.
var hkdfSalt = []byte("agentvault-v1")

// SecretContext is the binding context for one vault item's secret.
type SecretContext struct {
	AgentID string
	Handle  string
	Type    string
}

// EncryptedSecret is the stored form of a secret value. All three parts
// are standard base64.
type EncryptedSecret struct {
	Ciphertext string
	IV         string
	Tag        string
	KeyVersion int
}

// Engine performs all vault cryptography. It holds the master key for the
// process lifetime; agent keys are derived per operation and never cached.
type Engine struct {
	master MasterKey
}

func NewEngine(master MasterKey) *Engine {
	return &Engine{master: master}
}

// Configured reports whether the engine has a usable master key.
func (e *Engine) Configured() bool {
	return e.master.Configured()
}

// DeriveAgentKey derives the 32-byte encryption key for one agent via
// HKDF-SHA256 with info = agent id. Deterministic: the same agent id
// always yields the same key for a given master key.
func (e *Engine) DeriveAgentKey(agentID string) ([]byte, error) {
	master, err := e.master.bytes()
	if err != nil {
		return nil, err
	}
	info := []byte(strings.TrimSpace(agentID))
	stream := hkdf.New(sha256.New, master, hkdfSalt, info)
	key := make([]byte, agentKeySize)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, fmt.Errorf("derive agent key: %w", err)
	}
	return key, nil
}

// aad builds the associated data string binding a ciphertext to its
// context. Verified but not encrypted.
func aad(ctx SecretContext, keyVersion int) []byte {
	parts := []string{
		"vault",
		fmt.Sprintf("v%d", keyVersion),
		strings.TrimSpace(ctx.AgentID),
		strings.TrimSpace(ctx.Type),
		strings.TrimSpace(ctx.Handle),
	}
	return []byte(strings.Join(parts, "|"))
}

// EncryptSecret encrypts a plaintext secret under the owning agent's
// derived key with a fresh random 12-byte IV per call.
func (e *Engine) EncryptSecret(plaintext string, ctx SecretContext) (EncryptedSecret, error) {
	key, err := e.DeriveAgentKey(ctx.AgentID)
	if err != nil {
		return EncryptedSecret{}, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedSecret{}, fmt.Errorf("encrypt secret: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedSecret{}, fmt.Errorf("encrypt secret: %w", err)
	}

	iv := make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedSecret{}, fmt.Errorf("encrypt secret: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), aad(ctx, KeyVersion))
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	return EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		KeyVersion: KeyVersion,
	}, nil
}

// DecryptSecret recomputes the associated data from the current context
// and the record's stored key version, then decrypts and verifies the tag.
// Every failure mode after key derivation collapses into ErrDecryptFailed
// so failure reasons cannot be used as an oracle.
func (e *Engine) DecryptSecret(parts EncryptedSecret, ctx SecretContext) (string, error) {
	key, err := e.DeriveAgentKey(ctx.AgentID)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts.Ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	iv, err := base64.StdEncoding.DecodeString(parts.IV)
	if err != nil {
		return "", ErrDecryptFailed
	}
	tag, err := base64.StdEncoding.DecodeString(parts.Tag)
	if err != nil {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryptFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(iv) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return "", ErrDecryptFailed
	}

	keyVersion := parts.KeyVersion
	if keyVersion == 0 {
		keyVersion = KeyVersion
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad(ctx, keyVersion))
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
