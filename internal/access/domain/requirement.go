package domain

import entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"

// Requirement describes what a caller needs. Resource false is the global
// requirement, checked against catalog-wide grants only.
type Requirement struct {
	Resource     bool
	ScopeID      string
	RequiredKeys []entitlements.Key
}

// GlobalRequirement requires keys held at the global scope.
func GlobalRequirement(keys ...entitlements.Key) Requirement {
	return Requirement{RequiredKeys: keys}
}

// ResourceRequirement requires access to one resource.
func ResourceRequirement(scopeID string, keys ...entitlements.Key) Requirement {
	return Requirement{Resource: true, ScopeID: scopeID, RequiredKeys: keys}
}

// DecisionContext is logged with every decision.
type DecisionContext struct {
	Action        string
	CorrelationID string
}
