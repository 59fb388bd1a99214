package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretHasher_Generate(t *testing.T) {
	h := NewSecretHasher("shr_", "")

	secret, hash, err := h.Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, "shr_"))
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, secret)

	again, err := h.Hash(secret)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	other, _, err := h.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestSecretHasher_PepperChangesHash(t *testing.T) {
	plain := NewSecretHasher("shr_", "")
	peppered := NewSecretHasher("shr_", "pepper-1")
	otherPepper := NewSecretHasher("shr_", "pepper-2")

	secret, _, err := plain.Generate()
	require.NoError(t, err)

	a, err := plain.Hash(secret)
	require.NoError(t, err)
	b, err := peppered.Hash(secret)
	require.NoError(t, err)
	c, err := otherPepper.Hash(secret)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
}

func TestSecretHasher_RejectsMalformed(t *testing.T) {
	h := NewSecretHasher("shr_", "")
	for _, s := range []string{"", "shr_", "abc", "shr_0OIl", "pat_" + strings.Repeat("1", 44), "shr_3mJr7AoUXx2Wqd"} {
		_, err := h.Hash(s)
		assert.ErrorIs(t, err, ErrMalformedSecret, s)
	}
}

func TestSecretHasher_Deterministic(t *testing.T) {
	h := NewSecretHasher("shr_", "")
	h.rand = bytes.NewReader(bytes.Repeat([]byte{7}, SecretBytes))

	secret, hash, err := h.Generate()
	require.NoError(t, err)
	again, err := NewSecretHasher("shr_", "").Hash(secret)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestEqualSecret(t *testing.T) {
	assert.True(t, EqualSecret("s3cret", "s3cret"))
	assert.False(t, EqualSecret("s3cret", "s3cre"))
	assert.False(t, EqualSecret("", ""))
}
