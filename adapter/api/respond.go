package api

import (
	"errors"
	"net/http"

	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{
		Error:         code,
		Message:       message,
		CorrelationID: observability.CorrelationIDFromContext(c.Request.Context()),
	})
}

func badRequest(c *gin.Context, message string) {
	abortError(c, http.StatusBadRequest, "invalid_request", message)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, accessDomain.ErrPolicyUnavailable),
		errors.Is(err, accessDomain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, sharingDomain.ErrTokenNotFound),
		errors.Is(err, entitlementsDomain.ErrGrantNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entitlementsDomain.ErrUnknownKey),
		errors.Is(err, entitlementsDomain.ErrInvalidScope),
		errors.Is(err, entitlementsDomain.ErrUnknownTier),
		errors.Is(err, entitlementsDomain.ErrMemberRequired),
		errors.Is(err, accessDomain.ErrInvalidPolicy),
		errors.Is(err, sharingDomain.ErrKindRequired),
		errors.Is(err, sharingDomain.ErrInvalidCap),
		errors.Is(err, sharingDomain.ErrCreatorRequired),
		errors.Is(err, sharingDomain.ErrActionRequired),
		errors.Is(err, sharingDomain.ErrAnonIDRequired):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "request failed", "op", op, "error", err)
		message = ""
	} else if status == http.StatusServiceUnavailable {
		s.logger.WarnContext(c.Request.Context(), "dependency unavailable", "op", op, "error", err)
	}
	abortError(c, status, code, message)
}
