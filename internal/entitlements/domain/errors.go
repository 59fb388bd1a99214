package domain

import "errors"

var (
	// ErrUnknownKey indicates an entitlement key outside the closed vocabulary.
	ErrUnknownKey = errors.New("unknown entitlement key")

	// ErrInvalidScope indicates a scope string that is neither global nor a resource id.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrUnknownTier indicates a tier name outside friend, patron and partner.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrMemberRequired indicates a grant or revoke without a member id.
	ErrMemberRequired = errors.New("member id is required")

	// ErrGrantNotFound indicates no grant exists with the given id.
	ErrGrantNotFound = errors.New("grant not found")
)
