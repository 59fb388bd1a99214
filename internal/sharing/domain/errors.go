package domain

import "errors"

var (
	// ErrTokenNotFound is returned when no token matches a hash or id.
	ErrTokenNotFound = errors.New("share token not found")

	// ErrKindRequired indicates a mint without a kind label.
	ErrKindRequired = errors.New("token kind is required")

	// ErrInvalidCap indicates a non-positive redemption cap.
	ErrInvalidCap = errors.New("max redemptions must be positive")

	// ErrCreatorRequired indicates a mint without a creator.
	ErrCreatorRequired = errors.New("token creator is required")

	// ErrActionRequired indicates a validate or redeem without an action label.
	ErrActionRequired = errors.New("action is required")

	// ErrAnonIDRequired indicates a validate without an anonymous client id.
	ErrAnonIDRequired = errors.New("anonymous client id is required")
)
