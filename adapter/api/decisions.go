package api

import (
	"net/http"
	"time"

	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/gin-gonic/gin"
)

type decideRequest struct {
	Resource     bool     `json:"resource"`
	ScopeID      string   `json:"scope_id"`
	RequiredKeys []string `json:"required_keys"`
	Action       string   `json:"action"`
}

// requirement builds a resource requirement when resource is set or scope_id
// is present, and the global requirement otherwise. A resource request with
// no scope_id reaches the engine as-is and comes back INVALID_REQUEST, as do
// unknown keys.
func (r decideRequest) requirement() accessDomain.Requirement {
	keys := make([]entitlementsDomain.Key, 0, len(r.RequiredKeys))
	for _, k := range r.RequiredKeys {
		keys = append(keys, entitlementsDomain.Key(k))
	}
	if !r.Resource && r.ScopeID == "" {
		return accessDomain.GlobalRequirement(keys...)
	}
	return accessDomain.ResourceRequirement(r.ScopeID, keys...)
}

// handleDecide answers 200 for every decision, allowed or not.
func (s *Server) handleDecide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	decision, err := s.deps.Engine.Decide(ctx, memberID(c), req.requirement(), accessDomain.DecisionContext{
		Action:        req.Action,
		CorrelationID: observability.CorrelationIDFromContext(ctx),
	})
	if err != nil {
		s.fail(c, "decide", err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleMyEntitlements(c *gin.Context) {
	member := memberID(c)
	if member == "" {
		abortError(c, http.StatusUnauthorized, "auth_required", "identity token required")
		return
	}

	grants, err := s.deps.Ledger.ListActive(c.Request.Context(), member)
	if err != nil {
		s.fail(c, "list entitlements", err)
		return
	}

	now := time.Now()
	keys := entitlementsDomain.ActiveKeys(grants, now)
	c.JSON(http.StatusOK, gin.H{
		"member_id": member,
		"keys":      keys.Strings(),
		"tier":      entitlementsDomain.DeriveTier(entitlementsDomain.KeysCovering(grants, entitlementsDomain.Global(), now)).String(),
		"grants":    toGrantViews(grants, now),
	})
}
