package policy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/security"
	"gopkg.in/yaml.v3"
)

// fileDocument is the YAML layout:
//
//	policies:
//	  album-1:
//	    release_at: 2026-06-01T00:00:00Z
//	    early_access: true
//	    early_access_tiers: [patron, partner]
//	    min_tier: friend
type fileDocument struct {
	Policies map[string]filePolicy `yaml:"policies"`
}

type filePolicy struct {
	ReleaseAt        *time.Time `yaml:"release_at"`
	EarlyAccess      bool       `yaml:"early_access"`
	EarlyAccessTiers []string   `yaml:"early_access_tiers"`
	MinTier          string     `yaml:"min_tier"`
}

// FileProvider serves policies from a YAML file. The file is re-read when its
// modification time changes, so edits apply without a restart.
type FileProvider struct {
	path string

	mu       sync.Mutex
	modTime  time.Time
	policies map[string]domain.Policy
}

// NewFileProvider loads path and returns a provider for it.
func NewFileProvider(path string) (*FileProvider, error) {
	clean, err := security.ValidateFilePath(path)
	if err != nil {
		return nil, fmt.Errorf("policy file: %w", err)
	}
	p := &FileProvider{path: clean}
	if err := p.refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a copy of the policy for resourceID, or nil when the file has none.
func (p *FileProvider) Get(_ context.Context, resourceID string) (*domain.Policy, error) {
	if err := p.refresh(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	policy, ok := p.policies[resourceID]
	if !ok {
		return nil, nil
	}
	policy.EarlyAccessTiers = append([]entitlements.Tier(nil), policy.EarlyAccessTiers...)
	return &policy, nil
}

// Len returns the number of loaded policies.
func (p *FileProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.policies)
}

func (p *FileProvider) refresh() error {
	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("stat policy file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.policies != nil && info.ModTime().Equal(p.modTime) {
		return nil
	}

	policies, err := loadPolicyFile(p.path)
	if err != nil {
		return err
	}
	p.policies = policies
	p.modTime = info.ModTime()
	return nil
}

func loadPolicyFile(path string) (map[string]domain.Policy, error) {
	data, err := security.SafeReadFile(path, ".yaml", ".yml")
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	policies := make(map[string]domain.Policy, len(doc.Policies))
	for id, fp := range doc.Policies {
		tiers, err := domain.ParseTierNames(fp.EarlyAccessTiers)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", id, err)
		}
		minTier, err := entitlements.ParseTier(fp.MinTier)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", id, err)
		}
		policy := domain.Policy{
			ResourceID:       id,
			EarlyAccess:      fp.EarlyAccess,
			EarlyAccessTiers: tiers,
			MinTier:          minTier,
		}
		if fp.ReleaseAt != nil {
			t := fp.ReleaseAt.UTC()
			policy.ReleaseAt = &t
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", id, err)
		}
		policies[id] = policy
	}
	return policies, nil
}
