package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// parseOptionalTime reads an RFC 3339 timestamp or a duration from now.
func parseOptionalTime(value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid time %q, use RFC 3339 or a positive duration", value)
	}
	t := now.Add(d).UTC()
	return &t, nil
}

func parseKeys(values []string) []entitlements.Key {
	keys := make([]entitlements.Key, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			keys = append(keys, entitlements.Key(v))
		}
	}
	return keys
}
