package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(g.TokenPrefix, PrefixTag))
	assert.Len(t, g.TokenPrefix, len(PrefixTag)+8) // 4 random bytes, hex
	assert.True(t, strings.HasPrefix(g.Token, g.TokenPrefix+"."))

	secret := strings.TrimPrefix(g.Token, g.TokenPrefix+".")
	assert.NotEmpty(t, secret)
	assert.NotContains(t, secret, "=")

	// Two tokens never collide.
	g2, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, g.Token, g2.Token)
}

func TestParsePrefix(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"valid token", g.Token, g.TokenPrefix},
		{"whitespace tolerated", "  " + g.Token + " ", g.TokenPrefix},
		{"no dot", "avt_deadbeef", ""},
		{"wrong tag", "mcva_1234.secret", ""},
		{"leading dot", ".secret", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParsePrefix(tc.in))
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)

	stored, err := Hash(g.Token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "scrypt$"))
	assert.NotContains(t, stored, g.Token)

	assert.True(t, Verify(g.Token, stored))

	// Fresh salt per call: same token, different stored value.
	stored2, err := Hash(g.Token)
	require.NoError(t, err)
	assert.NotEqual(t, stored, stored2)
	assert.True(t, Verify(g.Token, stored2))
}

func TestVerifyRejectsSingleCharFlip(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)
	stored, err := Hash(g.Token)
	require.NoError(t, err)

	// Flip one character somewhere in the secret half.
	raw := []byte(g.Token)
	i := len(raw) - 3
	if raw[i] == 'A' {
		raw[i] = 'B'
	} else {
		raw[i] = 'A'
	}
	assert.False(t, Verify(string(raw), stored))
}

func TestVerifyMalformedStoredHash(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)

	cases := []string{
		"",
		"scrypt",
		"scrypt$onlysalt",
		"bcrypt$c2FsdA==$aGFzaA==",
		"scrypt$%%%$aGFzaA==",
		"scrypt$c2FsdA==$%%%",
		"scrypt$$",
		"scrypt$c2FsdA==$aGFzaA==$extra",
	}
	for _, stored := range cases {
		assert.False(t, Verify(g.Token, stored), "stored=%q", stored)
	}
}

func TestVerifyHonorsStoredOutputLength(t *testing.T) {
	g, err := Generate()
	require.NoError(t, err)

	// A hash produced with a shorter output length still verifies: the
	// stored value, not the default params, dictates the derived length.
	short := DefaultParams
	short.KeyLen = 16
	stored, err := HashWithParams(g.Token, short)
	require.NoError(t, err)
	assert.True(t, Verify(g.Token, stored))
}
