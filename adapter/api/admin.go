package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultAdminActor = "admin"

func actorOr(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return defaultAdminActor
}

type grantRequest struct {
	MemberID  string         `json:"member_id" binding:"required"`
	Key       string         `json:"key" binding:"required"`
	ScopeID   string         `json:"scope_id"`
	Meta      map[string]any `json:"meta"`
	ExpiresAt *time.Time     `json:"expires_at"`
	GrantedBy string         `json:"granted_by"`
	Reason    string         `json:"reason"`
}

// handleGrant answers 201 for a new grant and 200 when one was already active.
func (s *Server) handleGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	key, err := entitlementsDomain.ParseKey(req.Key)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := entitlementsDomain.ParseScope(req.ScopeID)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Ledger.Grant(c.Request.Context(), entitlementsApp.GrantCommand{
		MemberID:  req.MemberID,
		Key:       key,
		Scope:     scope,
		Meta:      req.Meta,
		ExpiresAt: req.ExpiresAt,
		GrantedBy: actorOr(req.GrantedBy),
		Reason:    req.Reason,
		Source:    entitlementsDomain.SourceAdmin,
	})
	if err != nil {
		s.fail(c, "grant", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": result.Created, "grant": toGrantView(result.Grant, time.Now())})
}

type revokeGrantRequest struct {
	GrantID   string `json:"grant_id"`
	MemberID  string `json:"member_id"`
	Key       string `json:"key"`
	ScopeID   string `json:"scope_id"`
	RevokedBy string `json:"revoked_by"`
	Reason    string `json:"reason"`
}

// handleRevokeGrant revokes by grant_id, or by (member_id, key, scope_id).
func (s *Server) handleRevokeGrant(c *gin.Context) {
	var req revokeGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	by := actorOr(req.RevokedBy)
	var (
		revoked int
		err     error
	)
	if req.GrantID != "" {
		id, perr := uuid.Parse(req.GrantID)
		if perr != nil {
			badRequest(c, "grant_id must be a uuid")
			return
		}
		revoked, err = s.deps.Ledger.RevokeByID(ctx, id, by, req.Reason)
	} else {
		key, kerr := entitlementsDomain.ParseKey(req.Key)
		if kerr != nil {
			badRequest(c, kerr.Error())
			return
		}
		scope, serr := entitlementsDomain.ParseScope(req.ScopeID)
		if serr != nil {
			badRequest(c, serr.Error())
			return
		}
		revoked, err = s.deps.Ledger.Revoke(ctx, entitlementsApp.RevokeCommand{
			MemberID:  req.MemberID,
			Key:       key,
			Scope:     scope,
			RevokedBy: by,
			Reason:    req.Reason,
		})
	}
	if err != nil {
		s.fail(c, "revoke grant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

func (s *Server) handleHistory(c *gin.Context) {
	member := c.Param("id")
	grants, err := s.deps.Ledger.History(c.Request.Context(), member)
	if err != nil {
		s.fail(c, "grant history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_id": member, "grants": toGrantViews(grants, time.Now())})
}

type mintRequest struct {
	Kind           string          `json:"kind" binding:"required"`
	ScopeID        string          `json:"scope_id"`
	Grants         json.RawMessage `json:"grants"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	MaxRedemptions *int            `json:"max_redemptions"`
	CreatedBy      string          `json:"created_by"`
}

// handleMintToken returns the plaintext secret. It is never retrievable again.
func (s *Server) handleMintToken(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := entitlementsDomain.ParseScope(req.ScopeID)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var grants []sharingDomain.DeclaredGrant
	if len(req.Grants) > 0 && string(req.Grants) != "null" {
		if grants, err = sharingDomain.DecodeDeclaredGrants(req.Grants); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	minted, err := s.deps.Tokens.Mint(c.Request.Context(), sharingApp.MintCommand{
		Kind:           req.Kind,
		Scope:          scope,
		Grants:         grants,
		ExpiresAt:      req.ExpiresAt,
		MaxRedemptions: req.MaxRedemptions,
		CreatedBy:      actorOr(req.CreatedBy),
	})
	if err != nil {
		s.fail(c, "mint token", err)
		return
	}
	view, err := toTokenView(minted.Token)
	if err != nil {
		s.fail(c, "mint token", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": view, "secret": minted.Secret})
}

type revokeTokenRequest struct {
	RevokedBy string `json:"revoked_by"`
}

func (s *Server) handleRevokeToken(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	var req revokeTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	revoked, err := s.deps.Tokens.Revoke(c.Request.Context(), id, actorOr(req.RevokedBy))
	if err != nil {
		s.fail(c, "revoke token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": id, "revoked": revoked})
}

func (s *Server) handleTokenUsage(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	usage, err := s.deps.Tokens.Usage(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "token usage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": id, "usage": usage})
}

func tokenIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "token id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
