// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the bearer-token gate shared by both portals. A single
// middleware, parameterized by the roles a route accepts, verifies the token
// and stores the tagged auth.Identity in the Gin context:
//   - 401 when the token is missing, malformed, or expired
//   - 403 when the token is valid but carries a role the route does not accept
//
// Downstream code reads the caller with IdentityFrom. The identity's ActorID
// is also stored under "userID" so logging, rate limiting, and idempotency key
// on the authenticated caller instead of the client IP.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/domain"
)

const (
	ctxKeyIdentity = "auth.identity"
	ctxKeyUserID   = "userID"
)

// TokenVerifier checks a raw bearer token. *auth.Tokens satisfies it.
type TokenVerifier interface {
	Verify(raw string, required ...domain.Role) (auth.Identity, error)
}

// RequireRole rejects requests whose bearer token does not verify or whose
// role is not one of roles. With no roles any valid token is accepted.
func RequireRole(v TokenVerifier, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.Verify(auth.BearerToken(c.GetHeader("Authorization")), roles...)
		if err != nil {
			status, code, msg := http.StatusUnauthorized, "unauthorized", "invalid token"
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				msg = "missing token"
			case errors.Is(err, auth.ErrForbidden):
				status, code, msg = http.StatusForbidden, "forbidden", "forbidden"
			}
			c.AbortWithStatusJSON(status, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       code,
				"message":    msg,
			})
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Set(ctxKeyUserID, id.ActorID())
		c.Next()
	}
}

// IdentityFrom returns the caller stored by RequireRole.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// WithIdentity stores id as if RequireRole had verified it. Used by tests and
// by handlers mounted behind a different authentication front.
func WithIdentity(c *gin.Context, id auth.Identity) {
	c.Set(ctxKeyIdentity, id)
	c.Set(ctxKeyUserID, id.ActorID())
}
