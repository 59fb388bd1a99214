// Package crypto generates and hashes bearer secrets.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// SecretBytes is the entropy of a generated secret.
const SecretBytes = 32

const pepperContext = "gatehouse 2026-01 share-token pepper"

// ErrMalformedSecret is returned for input that cannot be a secret we issued.
var ErrMalformedSecret = errors.New("malformed secret")

// SecretHasher issues prefixed base58 secrets and hashes them with BLAKE3.
// With a pepper the hash is keyed, so a leaked table cannot be checked offline.
type SecretHasher struct {
	prefix string
	key    *[32]byte
	rand   io.Reader
}

// NewSecretHasher creates a hasher for secrets starting with prefix.
// An empty pepper selects the unkeyed hash.
func NewSecretHasher(prefix, pepper string) *SecretHasher {
	h := &SecretHasher{prefix: prefix, rand: rand.Reader}
	if pepper != "" {
		var key [32]byte
		blake3.DeriveKey(pepperContext, []byte(pepper), key[:])
		h.key = &key
	}
	return h
}

// Generate returns a fresh secret and its hash. The secret is not retained.
func (h *SecretHasher) Generate() (secret, hash string, err error) {
	raw := make([]byte, SecretBytes)
	if _, err := io.ReadFull(h.rand, raw); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	secret = h.prefix + base58.Encode(raw)
	hash, err = h.Hash(secret)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}

// Hash returns the hex digest of a well-formed secret.
func (h *SecretHasher) Hash(secret string) (string, error) {
	if !h.wellFormed(secret) {
		return "", ErrMalformedSecret
	}
	if h.key == nil {
		sum := blake3.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:]), nil
	}
	hasher, err := blake3.NewKeyed(h.key[:])
	if err != nil {
		return "", err
	}
	_, _ = hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (h *SecretHasher) wellFormed(secret string) bool {
	body, ok := strings.CutPrefix(secret, h.prefix)
	if !ok || body == "" {
		return false
	}
	raw, err := base58.Decode(body)
	return err == nil && len(raw) == SecretBytes
}

// EqualSecret compares two configured secrets in constant time.
// An empty expected value never matches.
func EqualSecret(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
