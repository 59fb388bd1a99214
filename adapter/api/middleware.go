package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/ratelimit"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	headerCorrelationID = "X-Correlation-ID"
	headerAdminSecret   = "X-Admin-Secret"

	memberKey = "gatehouse.member_id"
)

// requestContext stamps correlation and request ids on the request context
// and logs each request once it completes.
func requestContext(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := observability.NewRequestContext(c.Request.Context(), c.GetHeader(headerCorrelationID))
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerCorrelationID, observability.CorrelationIDFromContext(ctx))

		c.Next()

		logger.DebugContext(ctx, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

// identityMiddleware verifies an optional HS256 bearer token. The subject
// becomes the member id; no token leaves the caller anonymous.
func identityMiddleware(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		memberID, err := verifyIdentity(parser, secret, raw)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		c.Set(memberKey, memberID)
		c.Next()
	}
}

func verifyIdentity(parser *jwt.Parser, secret, raw string) (string, error) {
	if secret == "" {
		return "", errors.New("identity verification is not configured")
	}
	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("verify identity token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("identity token has no subject")
	}
	return claims.Subject, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// memberID returns the verified member, or "" for anonymous callers.
func memberID(c *gin.Context) string {
	return c.GetString(memberKey)
}

// adminMiddleware compares X-Admin-Secret in constant time. An empty
// configured secret rejects every request.
func adminMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !crypto.EqualSecret(secret, c.GetHeader(headerAdminSecret)) {
			abortError(c, http.StatusUnauthorized, "admin_required", "valid admin secret required")
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware applies the sliding window per client IP. Limiter
// failures let the request through.
func rateLimitMiddleware(limiter ratelimit.Limiter, metrics observability.Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			metrics.Counter(observability.MetricRateLimited, 1, observability.T("route", c.FullPath()))
			abortError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next()
	}
}
