package api

import (
	"net/http"

	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	"github.com/gin-gonic/gin"
)

type tokenCheckRequest struct {
	Secret   string `json:"secret" binding:"required"`
	ScopeID  string `json:"scope_id"`
	AnonID   string `json:"anon_id"`
	Resource string `json:"resource"`
	Action   string `json:"action" binding:"required"`
}

// expectedScope reads scope_id. Absent means the caller expects no particular scope.
func (r tokenCheckRequest) expectedScope() (entitlementsDomain.Scope, error) {
	return entitlementsDomain.ParseScope(r.ScopeID)
}

// handleValidateToken checks a token for an anonymous caller. Token failures
// are 200 responses carrying the result code.
func (s *Server) handleValidateToken(c *gin.Context) {
	var req tokenCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := req.expectedScope()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Tokens.Validate(c.Request.Context(), sharingApp.ValidateCommand{
		Secret:        req.Secret,
		ExpectedScope: scope,
		AnonID:        req.AnonID,
		Resource:      req.Resource,
		Action:        req.Action,
	})
	if err != nil {
		s.fail(c, "validate token", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRedeemToken(c *gin.Context) {
	member := memberID(c)
	if member == "" {
		abortError(c, http.StatusUnauthorized, "auth_required", "identity token required")
		return
	}

	var req tokenCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := req.expectedScope()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Tokens.Redeem(c.Request.Context(), sharingApp.RedeemCommand{
		Secret:        req.Secret,
		MemberID:      member,
		ExpectedScope: scope,
		Resource:      req.Resource,
		Action:        req.Action,
	})
	if err != nil {
		s.fail(c, "redeem token", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
