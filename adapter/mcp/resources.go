package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/mcp-go"
)

const catalogURI = "gatehouse://catalog"

type catalogTier struct {
	Name      string   `json:"name"`
	Satisfied []string `json:"satisfied_by"`
}

type catalog struct {
	Keys  []string      `json:"keys"`
	Tiers []catalogTier `json:"tiers"`
}

func buildCatalog() catalog {
	keys := entitlements.AllKeys()
	c := catalog{Keys: make([]string, len(keys))}
	for i, k := range keys {
		c.Keys[i] = string(k)
	}
	for _, t := range []entitlements.Tier{entitlements.TierFriend, entitlements.TierPatron, entitlements.TierPartner} {
		satisfied := entitlements.TierKeysAtOrAbove(t)
		names := make([]string, len(satisfied))
		for i, k := range satisfied {
			names[i] = string(k)
		}
		c.Tiers = append(c.Tiers, catalogTier{Name: t.String(), Satisfied: names})
	}
	return c
}

// RegisterResources registers MCP resources that describe the entitlement vocabulary.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Resource(catalogURI).
		Name("Entitlement Catalog").
		Description("Known entitlement keys and the keys that satisfy each tier").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			data, err := json.MarshalIndent(buildCatalog(), "", "  ")
			if err != nil {
				return nil, err
			}
			return &mcp.ResourceContent{
				URI:      uri,
				MimeType: "application/json",
				Text:     string(data),
			}, nil
		})

	return nil
}
