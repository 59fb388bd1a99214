package domain

import (
	"encoding/json"
	"fmt"
)

// Code is the machine-readable outcome of a decision.
type Code string

const (
	CodeAllowed             Code = "ALLOWED"
	CodeAuthRequired        Code = "AUTH_REQUIRED"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeEmbargo             Code = "EMBARGO"
	CodeTierRequired        Code = "TIER_REQUIRED"
	CodeEntitlementRequired Code = "ENTITLEMENT_REQUIRED"
)

// SuggestedAction tells a client what to offer the member next.
// ActionNone encodes as JSON null.
type SuggestedAction string

const (
	ActionNone      SuggestedAction = ""
	ActionLogin     SuggestedAction = "login"
	ActionSubscribe SuggestedAction = "subscribe"
	ActionBuy       SuggestedAction = "buy"
	ActionWait      SuggestedAction = "wait"
)

// ParseSuggestedAction reads an action name. "" and "null" are ActionNone.
func ParseSuggestedAction(s string) (SuggestedAction, error) {
	switch a := SuggestedAction(s); a {
	case ActionNone, ActionLogin, ActionSubscribe, ActionBuy, ActionWait:
		return a, nil
	}
	if s == "null" {
		return ActionNone, nil
	}
	return ActionNone, fmt.Errorf("unknown suggested action %q", s)
}

// MarshalJSON encodes ActionNone as null.
func (a SuggestedAction) MarshalJSON() ([]byte, error) {
	if a == ActionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

// UnmarshalJSON accepts null or a known action.
func (a *SuggestedAction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ActionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSuggestedAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Decision is the outcome of an access check. Denials are values, not errors.
type Decision struct {
	Allowed bool            `json:"allowed"`
	Code    Code            `json:"code"`
	Action  SuggestedAction `json:"action"`
	Reason  string          `json:"reason"`
}

// Allow returns an allowed decision.
func Allow() Decision {
	return Decision{Allowed: true, Code: CodeAllowed, Reason: "access granted"}
}

// Deny returns a denial.
func Deny(code Code, action SuggestedAction, reason string) Decision {
	return Decision{Code: code, Action: action, Reason: reason}
}
