package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const (
	scopeGlobal         = "global"
	scopeResourcePrefix = "resource:"
)

// Scope is where a grant applies: catalog-wide, or a single resource.
// The zero value is Global.
type Scope struct {
	resourceID string
}

// Global returns the catalog-wide scope.
func Global() Scope { return Scope{} }

// Resource returns the scope for a single resource id.
func Resource(id string) (Scope, error) {
	if !validResourceID(id) {
		return Scope{}, fmt.Errorf("%w: resource id %q", ErrInvalidScope, id)
	}
	return Scope{resourceID: id}, nil
}

// ParseScope reads the external form. "" and "global" are Global,
// "resource:<id>" and a bare "<id>" are Resource(id).
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == scopeGlobal:
		return Global(), nil
	case strings.HasPrefix(s, scopeResourcePrefix):
		return Resource(strings.TrimPrefix(s, scopeResourcePrefix))
	default:
		return Resource(s)
	}
}

// ScopeFromColumn reads the nullable scope_id column.
func ScopeFromColumn(id *string) Scope {
	if id == nil || *id == "" {
		return Global()
	}
	return Scope{resourceID: *id}
}

// IsGlobal reports whether s is catalog-wide.
func (s Scope) IsGlobal() bool { return s.resourceID == "" }

// ResourceID returns the resource id and false for Global.
func (s Scope) ResourceID() (string, bool) {
	return s.resourceID, s.resourceID != ""
}

// Column is the value stored in scope_id. Global is NULL.
func (s Scope) Column() *string {
	if s.IsGlobal() {
		return nil
	}
	id := s.resourceID
	return &id
}

// Covers reports whether a grant at s applies to a request at target.
// Global grants cover every scope.
func (s Scope) Covers(target Scope) bool {
	return s.IsGlobal() || s == target
}

// String returns the external form.
func (s Scope) String() string {
	if s.IsGlobal() {
		return scopeGlobal
	}
	return scopeResourcePrefix + s.resourceID
}

// MarshalJSON encodes the external form.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the external form.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	parsed, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func validResourceID(id string) bool {
	if id == "" || id == scopeGlobal || len(id) > 256 {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
