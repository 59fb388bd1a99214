package domain

import "errors"

var (
	// ErrLedgerUnavailable wraps failures reading the entitlement ledger.
	ErrLedgerUnavailable = errors.New("entitlement ledger unavailable")

	// ErrPolicyUnavailable wraps failures reading policies, including an open breaker.
	ErrPolicyUnavailable = errors.New("policy store unavailable")

	// ErrInvalidPolicy indicates a policy that cannot be stored.
	ErrInvalidPolicy = errors.New("invalid policy")
)
