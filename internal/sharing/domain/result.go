package domain

import (
	"encoding/json"

	"github.com/google/uuid"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
)

// ResultCode is the outcome of validating or redeeming a token.
type ResultCode string

const (
	ResultOK            ResultCode = "OK"
	ResultInvalid       ResultCode = "INVALID"
	ResultRevoked       ResultCode = "REVOKED"
	ResultExpired       ResultCode = "EXPIRED"
	ResultScopeMismatch ResultCode = "SCOPE_MISMATCH"
	ResultCapReached    ResultCode = "CAP_REACHED"
)

// Result is the typed outcome of a token check. Failures are codes, not errors.
type Result struct {
	Code      ResultCode
	TokenID   uuid.UUID
	Kind      string
	Scope     entitlements.Scope
	Granted   []entitlements.Key
	Remaining *int
}

type resultJSON struct {
	Code      ResultCode         `json:"code"`
	TokenID   *uuid.UUID         `json:"token_id,omitempty"`
	Kind      string             `json:"kind,omitempty"`
	Scope     *string            `json:"scope,omitempty"`
	Granted   []entitlements.Key `json:"granted,omitempty"`
	Remaining *int               `json:"remaining,omitempty"`
}

// MarshalJSON omits the token fields of a failed result.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Code: r.Code, Kind: r.Kind, Granted: r.Granted, Remaining: r.Remaining}
	if r.TokenID != uuid.Nil {
		id := r.TokenID
		scope := r.Scope.String()
		out.TokenID = &id
		out.Scope = &scope
	}
	return json.Marshal(out)
}

// OK reports whether the token authorized the request.
func (r Result) OK() bool { return r.Code == ResultOK }

// Failed returns a result carrying only a failure code.
func Failed(code ResultCode) Result {
	return Result{Code: code}
}
