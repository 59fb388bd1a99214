package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/infrastructure/policy"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyYAML = `
policies:
  album-1:
    release_at: 2026-06-01T00:00:00Z
    early_access: true
    early_access_tiers: [patron, partner]
  album-2:
    min_tier: patron
`

func writePolicyFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileProvider_Get(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), policyYAML)
	provider, err := policy.NewFileProvider(path)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.Len())

	p, err := provider.Get(context.Background(), "album-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.ReleaseAt)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *p.ReleaseAt)
	assert.True(t, p.AllowsEarlyAccess(entitlements.TierPatron))
	assert.False(t, p.AllowsEarlyAccess(entitlements.TierFriend))

	p, err = provider.Get(context.Background(), "album-2")
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierPatron, p.MinTier)
	assert.Nil(t, p.ReleaseAt)

	p, err = provider.Get(context.Background(), "album-3")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFileProvider_ReloadsOnChange(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), policyYAML)
	provider, err := policy.NewFileProvider(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("policies:\n  album-9:\n    min_tier: friend\n"), 0o600))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	p, err := provider.Get(context.Background(), "album-9")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, entitlements.TierFriend, p.MinTier)
	assert.Equal(t, 1, provider.Len())
}

func TestFileProvider_RejectsUnknownTier(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "policies:\n  album-1:\n    min_tier: gold\n")
	_, err := policy.NewFileProvider(path)
	assert.Error(t, err)
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := policy.NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
