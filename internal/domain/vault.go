package domain

import "time"

// CredentialType classifies what kind of secret a vault item holds.
type CredentialType string

const (
	TypeAPIKey           CredentialType = "api_key"
	TypeUsernamePassword CredentialType = "username_password"
	TypeOAuthRefresh     CredentialType = "oauth_refresh"
	TypeSecret           CredentialType = "secret"
)

func (t CredentialType) Valid() bool {
	switch t {
	case TypeAPIKey, TypeUsernamePassword, TypeOAuthRefresh, TypeSecret:
		return true
	}
	return false
}

// ExposureMode controls whether a secret may ever be shown to a human.
// inject_only items can be resolved by an authorized agent but never
// revealed through the admin surface.
type ExposureMode string

const (
	ExposureInjectOnly ExposureMode = "inject_only"
	ExposureRevealable ExposureMode = "revealable"
)

func (m ExposureMode) Valid() bool {
	return m == ExposureInjectOnly || m == ExposureRevealable
}

// VaultItem is one stored credential owned by exactly one agent.
// (Agent, Handle) is unique. The secret value only exists as the
// ciphertext/IV/tag triple; plaintext never touches storage.
type VaultItem struct {
	ID               string
	Agent            string
	Handle           string
	Type             CredentialType
	Service          string
	Username         string
	SecretCiphertext string // base64
	SecretIV         string // base64
	SecretTag        string // base64
	KeyVersion       int
	ExposureMode     ExposureMode
	Disabled         bool
	Notes            string
	Tags             []string
	LastUsedAt       time.Time
	LastRotatedAt    time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccessToken is a per-agent bearer credential. It authorizes resolving
// any handle owned by its agent. Only the salted hash of the full token
// is kept; the plaintext is returned once at creation and never again.
type AccessToken struct {
	ID          string
	Agent       string
	TokenPrefix string
	TokenHash   string
	Label       string
	Disabled    bool
	LastUsedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
