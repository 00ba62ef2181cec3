package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	raw := make([]byte, MasterKeySize)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	master, err := ParseMasterKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	return NewEngine(master)
}

func TestParseMasterKey(t *testing.T) {
	raw := make([]byte, MasterKeySize)
	_, err := rand.Read(raw)
	require.NoError(t, err)

	std := base64.StdEncoding.EncodeToString(raw)
	url := base64.RawURLEncoding.EncodeToString(raw)

	t.Run("standard base64", func(t *testing.T) {
		key, err := ParseMasterKey(std)
		require.NoError(t, err)
		assert.True(t, key.Configured())
	})

	t.Run("base64url without padding is normalized", func(t *testing.T) {
		key, err := ParseMasterKey(url)
		require.NoError(t, err)
		assert.True(t, key.Configured())
	})

	t.Run("surrounding whitespace tolerated", func(t *testing.T) {
		_, err := ParseMasterKey("  " + std + "\n")
		require.NoError(t, err)
	})

	t.Run("empty is not configured", func(t *testing.T) {
		_, err := ParseMasterKey("")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		_, err := ParseMasterKey(base64.StdEncoding.EncodeToString(raw[:16]))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseMasterKey("!!not base64!!")
		require.Error(t, err)
	})
}

func TestDeriveAgentKeyDeterministic(t *testing.T) {
	e := testEngine(t)

	k1, err := e.DeriveAgentKey("agent-a")
	require.NoError(t, err)
	k2, err := e.DeriveAgentKey("agent-a")
	require.NoError(t, err)
	k3, err := e.DeriveAgentKey("agent-b")
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := testEngine(t)
	ctx := SecretContext{AgentID: "main", Handle: "github_pat", Type: "api_key"}

	plaintexts := []string{
		"ghp_123",
		"",
		"пароль-ユーザー-🔑",
		strings.Repeat("x", 4096),
	}
	for _, pt := range plaintexts {
		enc, err := e.EncryptSecret(pt, ctx)
		require.NoError(t, err)
		assert.Equal(t, KeyVersion, enc.KeyVersion)

		got, err := e.DecryptSecret(enc, ctx)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestFreshIVPerCall(t *testing.T) {
	e := testEngine(t)
	ctx := SecretContext{AgentID: "main", Handle: "h", Type: "secret"}

	a, err := e.EncryptSecret("same", ctx)
	require.NoError(t, err)
	b, err := e.EncryptSecret("same", ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestAADBinding(t *testing.T) {
	e := testEngine(t)
	base := SecretContext{AgentID: "A", Handle: "h", Type: "t"}

	enc, err := e.EncryptSecret("p", base)
	require.NoError(t, err)

	cases := map[string]SecretContext{
		"different handle": {AgentID: "A", Handle: "h2", Type: "t"},
		"different agent":  {AgentID: "B", Handle: "h", Type: "t"},
		"different type":   {AgentID: "A", Handle: "h", Type: "t2"},
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.DecryptSecret(enc, ctx)
			assert.ErrorIs(t, err, ErrDecryptFailed)
		})
	}
}

func TestTamperedPartsFailUniformly(t *testing.T) {
	e := testEngine(t)
	ctx := SecretContext{AgentID: "A", Handle: "h", Type: "t"}

	enc, err := e.EncryptSecret("payload", ctx)
	require.NoError(t, err)

	flip := func(s string) string {
		raw, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		if len(raw) == 0 {
			raw = []byte{0}
		}
		raw[0] ^= 0x01
		return base64.StdEncoding.EncodeToString(raw)
	}

	tampered := []EncryptedSecret{
		{Ciphertext: flip(enc.Ciphertext), IV: enc.IV, Tag: enc.Tag, KeyVersion: enc.KeyVersion},
		{Ciphertext: enc.Ciphertext, IV: flip(enc.IV), Tag: enc.Tag, KeyVersion: enc.KeyVersion},
		{Ciphertext: enc.Ciphertext, IV: enc.IV, Tag: flip(enc.Tag), KeyVersion: enc.KeyVersion},
		{Ciphertext: "not base64", IV: enc.IV, Tag: enc.Tag, KeyVersion: enc.KeyVersion},
		{Ciphertext: enc.Ciphertext, IV: enc.IV, Tag: enc.Tag, KeyVersion: 2},
	}
	for i, parts := range tampered {
		_, err := e.DecryptSecret(parts, ctx)
		assert.ErrorIs(t, err, ErrDecryptFailed, "case %d", i)
	}
}

func TestUnconfiguredEngineFailsClosed(t *testing.T) {
	e := NewEngine(MasterKey{})
	ctx := SecretContext{AgentID: "A", Handle: "h", Type: "t"}

	assert.False(t, e.Configured())

	_, err := e.EncryptSecret("p", ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = e.DecryptSecret(EncryptedSecret{}, ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = e.DeriveAgentKey("A")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDifferentMasterKeysCannotDecrypt(t *testing.T) {
	ctx := SecretContext{AgentID: "A", Handle: "h", Type: "t"}
	e1 := testEngine(t)
	e2 := testEngine(t)

	enc, err := e1.EncryptSecret("p", ctx)
	require.NoError(t, err)

	_, err = e2.DecryptSecret(enc, ctx)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}
